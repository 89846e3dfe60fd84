package audit_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
	"github.com/Kaaval/Main/evidence-ledger/internal/store"
	"github.com/Kaaval/Main/evidence-ledger/internal/testutil"
)

var officer = models.Principal{ID: "officer-1", Name: "R. Kumar", Role: models.RolePolice, Org: "CITY-PD"}

func newLedger(t *testing.T) (*audit.Ledger, *testutil.MemoryStore, *[]time.Duration) {
	t.Helper()
	ms := testutil.NewMemoryStore()
	l := audit.New(ms, audit.Config{})
	var sleeps []time.Duration
	l.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return l, ms, &sleeps
}

func TestAppendAssignsIdentityAndDigest(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	e, err := l.Append(ctx, audit.Draft{
		CaseID:      "CASE-1",
		Action:      models.ActionCreateCase,
		Actor:       officer,
		Description: "Case created",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, models.ResultSuccess, e.Result)
	assert.Equal(t, "CITY-PD", e.Actor.Org)
	assert.Len(t, e.MetadataHash, 64)

	ok, err := l.VerifyEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAppendDefaultsToSystemActor(t *testing.T) {
	l, _, _ := newLedger(t)
	e, err := l.Append(context.Background(), audit.Draft{Action: models.ActionLogin})
	require.NoError(t, err)
	assert.Equal(t, "system", e.Actor.UserID)
	assert.Equal(t, "SYSTEM", e.Actor.Role)
	assert.Equal(t, "INTERNAL", e.Actor.Org)
}

func TestAppendRejectsUnknownAction(t *testing.T) {
	l, ms, _ := newLedger(t)
	_, err := l.Append(context.Background(), audit.Draft{Action: "DELETE"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Zero(t, ms.AuditInsertCalls)
}

func TestTimestampsStrictlyIncrease(t *testing.T) {
	l, _, _ := newLedger(t)
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l.NowFunc = func() time.Time { return fixed }

	var prev time.Time
	for i := 0; i < 5; i++ {
		e, err := l.Append(context.Background(), audit.Draft{Action: models.ActionView})
		require.NoError(t, err)
		assert.True(t, e.Timestamp.After(prev), "entry %d not after previous", i)
		prev = e.Timestamp
	}
}

func TestVerifyEntryDetectsTampering(t *testing.T) {
	l, ms, _ := newLedger(t)
	ctx := context.Background()
	e, err := l.Append(ctx, audit.Draft{Action: models.ActionUpload, Detail: models.AuditDetail{Hash: "ba7816bf8f01..."}})
	require.NoError(t, err)

	tampered := e
	tampered.Detail.Hash = "000000000000..."
	ms.PutAuditEntry(tampered)

	ok, err := l.VerifyEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	report, err := l.VerifyAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, []string{e.ID}, report.Failed)

	_, err = l.VerifyEntry(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRecordRetriesTransientFailures(t *testing.T) {
	l, ms, sleeps := newLedger(t)
	ms.FailAuditInserts = 2

	r := l.Record(context.Background(), audit.Draft{Action: models.ActionUpload, Actor: officer})
	assert.True(t, r.Recorded)
	assert.NotEmpty(t, r.EntryID)
	require.NotNil(t, r.Timestamp)
	assert.Equal(t, 3, ms.AuditInsertCalls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *sleeps)
}

func TestRecordGivesUpAfterMaxAttempts(t *testing.T) {
	l, ms, sleeps := newLedger(t)
	ms.FailAuditInserts = 10

	r := l.Record(context.Background(), audit.Draft{Action: models.ActionUpload, Actor: officer})
	assert.False(t, r.Recorded)
	assert.Empty(t, r.EntryID)
	assert.Equal(t, "append audit entry", r.Error)
	assert.Equal(t, 3, ms.AuditInsertCalls)
	assert.Len(t, *sleeps, 2)
	assert.Empty(t, ms.AuditEntries())
}

func TestRecordBackoffIsCapped(t *testing.T) {
	ms := testutil.NewMemoryStore()
	ms.FailAuditInserts = 10
	l := audit.New(ms, audit.Config{MaxAttempts: 6, Backoff: 500 * time.Millisecond})
	var sleeps []time.Duration
	l.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	l.Record(context.Background(), audit.Draft{Action: models.ActionView})
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond, time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second,
	}, sleeps)
}

func TestRecordSurvivesCancelledContext(t *testing.T) {
	l, ms, _ := newLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := l.Record(ctx, audit.Draft{Action: models.ActionView})
	assert.True(t, r.Recorded)
	assert.Len(t, ms.AuditEntries(), 1)
}

func TestQueryOrderAndFilters(t *testing.T) {
	l, _, _ := newLedger(t)
	clock := testutil.NewClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	l.NowFunc = clock.Now
	ctx := context.Background()

	for _, d := range []audit.Draft{
		{CaseID: "CASE-1", Action: models.ActionCreateCase, Actor: officer},
		{CaseID: "CASE-1", EvidenceID: "EV-1", Action: models.ActionUpload, Actor: officer},
		{CaseID: "CASE-2", Action: models.ActionCreateCase, Actor: officer},
		{CaseID: "CASE-1", EvidenceID: "EV-1", Action: models.ActionVerify, Result: models.ResultMatch},
	} {
		_, err := l.Append(ctx, d)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	all, err := l.Query(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].Timestamp.After(all[i].Timestamp))
	}

	case1, err := l.Query(ctx, audit.Filter{CaseID: "CASE-1"})
	require.NoError(t, err)
	require.Len(t, case1, 3)
	assert.Equal(t, models.ActionVerify, case1[0].Action)
	assert.Equal(t, models.ActionCreateCase, case1[2].Action)

	byUser, err := l.Query(ctx, audit.Filter{CaseID: "CASE-1", UserID: "officer-1"})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	limited, err := l.Query(ctx, audit.Filter{EvidenceID: "EV-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, models.ActionVerify, limited[0].Action)
}

func TestReconcileMemoryIsIdempotent(t *testing.T) {
	l, ms, _ := newLedger(t)
	ctx := context.Background()
	ms.PutAuditEntry(models.AuditEntry{
		ID:        "legacy-1",
		CaseID:    "CASE-1",
		Action:    models.ActionUpload,
		Actor:     models.AuditActor{UserID: "officer-1", Role: "POLICE", Org: "INTERNAL"},
		Timestamp: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Result:    models.ResultSuccess,
	})

	first, err := l.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, audit.ReconcileReport{Scanned: 1, Updated: 1}, first)

	second, err := l.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, audit.ReconcileReport{}, second)

	ok, err := l.VerifyEntry(ctx, "legacy-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReconcileSQLiteUnpacksLegacyDetails(t *testing.T) {
	ctx := context.Background()
	db, dialect, err := store.Open("sqlite", filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer db.Close()
	s := store.NewSQLStore(db, dialect)
	_, err = s.Migrate(ctx)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, case_id, action, user_id, user_role, user_org, timestamp, result, details, detail_title)
		VALUES ('legacy-1', 'CASE-1', 'UPLOAD', 'officer-1', 'POLICE', 'INTERNAL', '2023-01-01T00:00:00Z', 'SUCCESS',
		        '{"hash":"ba7816bf8f01...","fileName":"scene.jpg","title":"ignored"}', 'Scene photo')
	`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, user_id, user_role, user_org, timestamp, result, details)
		VALUES ('legacy-2', 'LOGIN', 'officer-1', 'POLICE', 'INTERNAL', '2023-01-01T00:00:01Z', 'SUCCESS', 'User logged in')
	`)
	require.NoError(t, err)

	l := audit.New(s, audit.Config{})
	first, err := l.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, audit.ReconcileReport{Scanned: 2, Updated: 2}, first)

	second, err := l.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, audit.ReconcileReport{}, second)

	e, err := l.Get(ctx, "legacy-1")
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01...", e.Detail.Hash)
	assert.Equal(t, "scene.jpg", e.Detail.FileName)
	assert.Equal(t, "Scene photo", e.Detail.Title, "existing column wins")

	report, err := l.VerifyAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Empty(t, report.Failed)
}
