package registry_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/custody"
	"github.com/Kaaval/Main/evidence-ledger/internal/filestore"
	"github.com/Kaaval/Main/evidence-ledger/internal/hasher"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
	"github.com/Kaaval/Main/evidence-ledger/internal/registry"
	"github.com/Kaaval/Main/evidence-ledger/internal/store"
	"github.com/Kaaval/Main/evidence-ledger/internal/testutil"
	"github.com/Kaaval/Main/evidence-ledger/internal/verifier"
)

var (
	officer = models.Principal{ID: "officer-1", Name: "Insp. Rao", Role: models.RolePolice, Designation: "Inspector", Org: "CITY-PD"}
	analyst = models.Principal{ID: "fsl-1", Role: models.RoleForensics, Org: "FSL"}
	counsel = models.Principal{ID: "legal-1", Role: models.RoleLegal, Org: "DA"}
	admin   = models.Principal{ID: "admin-1", Role: models.RoleAdmin}
)

type env struct {
	ms       *testutil.MemoryStore
	files    *filestore.LocalStore
	ledger   *audit.Ledger
	reg      *registry.Registry
	verifier *verifier.Verifier
	machine  *custody.Machine
	clock    *testutil.Clock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ms := testutil.NewMemoryStore()
	files, err := filestore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	clock := testutil.NewClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	ledger := audit.New(ms, audit.Config{})
	ledger.Sleep = func(time.Duration) {}
	ledger.NowFunc = clock.Now

	reg := registry.New(ms, files, ledger, registry.Config{MaxCorrelationDepth: 3})
	reg.NowFunc = clock.Now
	n := 0
	reg.NewID = func(prefix string) string {
		n++
		return fmt.Sprintf("%s-G%d", prefix, n)
	}
	u := 0
	reg.NewUploadID = func() string {
		u++
		return fmt.Sprintf("up-%d", u)
	}

	locker := verifier.NewLocalLocker()
	v := verifier.New(ms, files, ledger, locker)
	v.NowFunc = clock.Now
	m := custody.New(ms, ms, ledger, locker)
	m.NowFunc = clock.Now
	return &env{ms: ms, files: files, ledger: ledger, reg: reg, verifier: v, machine: m, clock: clock}
}

func (e *env) createCase(t *testing.T, id string) models.Case {
	t.Helper()
	c, receipt, err := e.reg.CreateCase(context.Background(), officer, registry.CaseInput{ID: id, Title: "Warehouse burglary"})
	require.NoError(t, err)
	require.True(t, receipt.Recorded)
	return c
}

func (e *env) upload(t *testing.T, in registry.UploadInput) models.Evidence {
	t.Helper()
	e.clock.Advance(time.Minute)
	ev, receipt, err := e.reg.UploadEvidence(context.Background(), officer, in)
	require.NoError(t, err)
	require.True(t, receipt.Recorded)
	return ev
}

func TestCreateCase(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	c := e.createCase(t, "CASE-1")
	assert.Equal(t, models.CaseOpen, c.Status)
	assert.Equal(t, "officer-1", c.Custodian, "custodian defaults to creator")
	assert.Equal(t, "POLICE", c.CustodianRole)

	_, _, err := e.reg.CreateCase(ctx, officer, registry.CaseInput{ID: "CASE-1", Title: "again"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, _, err = e.reg.CreateCase(ctx, officer, registry.CaseInput{Title: "  "})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.Message(err), "title (required)")

	_, _, err = e.reg.CreateCase(ctx, officer, registry.CaseInput{ID: "../x", Title: "bad"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	generated, _, err := e.reg.CreateCase(ctx, officer, registry.CaseInput{Title: "Second", Custodian: "Desk 4"})
	require.NoError(t, err)
	assert.Equal(t, "CASE-G1", generated.ID)
	assert.Equal(t, "Desk 4", generated.Custodian)

	got, err := e.reg.GetCase(ctx, "CASE-1")
	require.NoError(t, err)
	assert.Equal(t, "Warehouse burglary", got.Title)
	_, err = e.reg.GetCase(ctx, "CASE-404")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	list, err := e.reg.ListCases(ctx, store.CaseFilter{Custodian: "Desk 4"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, err = e.reg.ListCases(ctx, store.CaseFilter{Limit: -1})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUploadEvidence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createCase(t, "CASE-1")

	ev := e.upload(t, registry.UploadInput{
		CaseID:     "CASE-1",
		EvidenceID: "EV-1",
		Type:       models.EvidenceImage,
		FileName:   "scene.jpg",
		Location:   "Dock 7",
		Content:    strings.NewReader("abc"),
	})
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", ev.FileHash)
	assert.Equal(t, models.ClassificationSecondary, ev.Classification)
	assert.Equal(t, models.IntegrityNotChecked, ev.IntegrityStatus)
	assert.Equal(t, "cases/CASE-1/evidence/EV-1/up-1/scene.jpg", ev.FileRef)
	assert.Equal(t, "officer-1", ev.Custodian)
	assert.True(t, hasher.IsDigest(ev.MetadataHash))

	wantMeta, err := hasher.DigestMetadata(map[string]interface{}{
		"caseId":      "CASE-1",
		"id":          "EV-1",
		"name":        "scene.jpg",
		"type":        "IMAGE",
		"uri":         ev.FileRef,
		"timestamp":   models.FormatTime(ev.UploadedAt),
		"location":    "Dock 7",
		"submittedBy": "officer-1",
	})
	require.NoError(t, err)
	assert.Equal(t, wantMeta, ev.MetadataHash)

	rc, err := e.files.Open(ctx, ev.FileRef)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(body))

	uploads, err := e.ledger.Query(ctx, audit.Filter{EvidenceID: "EV-1", Action: models.ActionUpload})
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, "Uploaded scene.jpg (IMAGE) as SECONDARY", uploads[0].Description)
	assert.Equal(t, hasher.Fragment(ev.FileHash), uploads[0].Detail.Hash)
	assert.Equal(t, ev.MetadataHash, uploads[0].Detail.MetadataHash)
}

func TestUploadClassifiesPrimary(t *testing.T) {
	e := newEnv(t)
	e.createCase(t, "CASE-1")
	ev := e.upload(t, registry.UploadInput{
		CaseID:          "CASE-1",
		Type:            models.EvidenceVideo,
		FileName:        "lift.mp4",
		SourceHash:      hasher.DigestBytes([]byte("source")),
		LiftingVideoRef: "videos/lift.mp4",
		Content:         strings.NewReader("video"),
	})
	assert.Equal(t, models.ClassificationPrimary, ev.Classification)
	assert.Equal(t, "EV-G1", ev.ID)
}

func TestUploadValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createCase(t, "CASE-1")

	cases := map[string]registry.UploadInput{
		"missing type":      {CaseID: "CASE-1", FileName: "a.jpg", Content: strings.NewReader("x")},
		"unknown type":      {CaseID: "CASE-1", Type: "HOLOGRAM", FileName: "a.jpg", Content: strings.NewReader("x")},
		"path in name":      {CaseID: "CASE-1", Type: models.EvidenceImage, FileName: "../a.jpg", Content: strings.NewReader("x")},
		"dot name":          {CaseID: "CASE-1", Type: models.EvidenceImage, FileName: "..", Content: strings.NewReader("x")},
		"no content":        {CaseID: "CASE-1", Type: models.EvidenceImage, FileName: "a.jpg"},
		"short source hash": {CaseID: "CASE-1", Type: models.EvidenceImage, FileName: "a.jpg", SourceHash: "abc", Content: strings.NewReader("x")},
		"bad role":          {CaseID: "CASE-1", Type: models.EvidenceImage, FileName: "a.jpg", Visibility: models.Visibility{AllowedRoles: []models.Role{"JANITOR"}}, Content: strings.NewReader("x")},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := e.reg.UploadEvidence(ctx, officer, in)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}

	_, _, err := e.reg.UploadEvidence(ctx, officer, registry.UploadInput{CaseID: "CASE-404", Type: models.EvidenceImage, FileName: "a.jpg", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 1, e.ms.AuditInsertCalls, "only CREATE_CASE was recorded")
}

func TestUploadRejectsDuplicateID(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createCase(t, "CASE-1")

	_, _, err := e.reg.UploadEvidence(ctx, officer, registry.UploadInput{CaseID: "CASE-1", EvidenceID: "EV-9", Type: models.EvidenceImage, FileName: "a.jpg", Content: strings.NewReader("x")})
	require.NoError(t, err)
	_, _, err = e.reg.UploadEvidence(ctx, officer, registry.UploadInput{CaseID: "CASE-1", EvidenceID: "EV-9", Type: models.EvidenceImage, FileName: "b.jpg", Content: strings.NewReader("y")})
	assert.ErrorIs(t, err, apperr.ErrValidation, "duplicate id")
}

// lookupStore answers every evidence lookup with err, as a store does when a
// concurrent upload of the same id has not committed yet.
type lookupStore struct {
	*testutil.MemoryStore
	err error
}

func (s lookupStore) GetEvidence(ctx context.Context, id string) (models.Evidence, error) {
	return models.Evidence{}, s.err
}

func TestFailedDuplicateUploadKeepsStoredFile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createCase(t, "CASE-1")
	e.upload(t, registry.UploadInput{CaseID: "CASE-1", EvidenceID: "EV-1", Type: models.EvidenceImage, FileName: "scene.jpg", Content: strings.NewReader("original")})

	racing := registry.New(lookupStore{MemoryStore: e.ms, err: store.ErrNotFound}, e.files, e.ledger, registry.Config{})
	_, _, err := racing.UploadEvidence(ctx, officer, registry.UploadInput{CaseID: "CASE-1", EvidenceID: "EV-1", Type: models.EvidenceImage, FileName: "scene.jpg", Content: strings.NewReader("other")})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "evidence EV-1 already exists", apperr.Message(err))

	e.clock.Advance(time.Minute)
	out, _, err := e.verifier.Verify(ctx, analyst, "EV-1")
	require.NoError(t, err)
	assert.True(t, out.Matched, "stored bytes are untouched")
	assert.Equal(t, models.IntegrityVerified, out.Status)

	dir, err := e.files.Path("cases/CASE-1/evidence/EV-1")
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "the rejected attempt's file is removed")
	assert.Equal(t, "up-1", entries[0].Name())
}

func TestUploadLookupFailureIsPersistence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createCase(t, "CASE-1")

	failing := registry.New(lookupStore{MemoryStore: e.ms, err: errors.New("connection reset")}, e.files, e.ledger, registry.Config{})
	_, _, err := failing.UploadEvidence(ctx, officer, registry.UploadInput{CaseID: "CASE-1", EvidenceID: "EV-2", Type: models.EvidenceImage, FileName: "a.jpg", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, apperr.ErrPersistence)

	dir, err := e.files.Path("cases/CASE-1/evidence/EV-2")
	require.NoError(t, err)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "nothing was written")
	_, err = e.ms.GetEvidence(ctx, "EV-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUploadSurvivesAuditOutage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createCase(t, "CASE-1")
	e.ms.FailAuditInserts = 3
	before := e.ms.AuditInsertCalls

	ev, receipt, err := e.reg.UploadEvidence(ctx, officer, registry.UploadInput{CaseID: "CASE-1", Type: models.EvidenceImage, FileName: "a.jpg", Content: strings.NewReader("x")})
	require.NoError(t, err, "the primary mutation still succeeds")
	assert.False(t, receipt.Recorded)
	assert.Equal(t, 3, e.ms.AuditInsertCalls-before)

	stored, err := e.ms.GetEvidence(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.FileHash, stored.FileHash)
}

func TestVisibilityOnReads(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createCase(t, "CASE-1")
	e.upload(t, registry.UploadInput{CaseID: "CASE-1", EvidenceID: "EV-OPEN", Type: models.EvidenceImage, FileName: "a.jpg", Content: strings.NewReader("a")})
	e.upload(t, registry.UploadInput{
		CaseID: "CASE-1", EvidenceID: "EV-LAB", Type: models.EvidenceImage, FileName: "b.jpg",
		Visibility: models.Visibility{IsRestricted: true, AllowedRoles: []models.Role{models.RoleForensics}},
		Content:    strings.NewReader("b"),
	})

	list, err := e.reg.ListCaseEvidence(ctx, counsel, "CASE-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "EV-OPEN", list[0].ID)

	list, err = e.reg.ListCaseEvidence(ctx, admin, "CASE-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, _, err = e.reg.GetEvidence(ctx, counsel, "EV-LAB")
	assert.ErrorIs(t, err, apperr.ErrNotFound, "hidden items look missing")

	got, receipt, err := e.reg.GetEvidence(ctx, analyst, "EV-LAB")
	require.NoError(t, err)
	assert.Equal(t, "b.jpg", got.FileName)
	assert.True(t, receipt.Recorded)

	rc, _, err := e.reg.OpenEvidenceContent(ctx, analyst, "EV-LAB")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "b", string(body))

	_, _, err = e.reg.OpenEvidenceContent(ctx, counsel, "EV-LAB")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	views, err := e.ledger.Query(ctx, audit.Filter{EvidenceID: "EV-LAB"})
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, models.ActionDownload, views[0].Action)
	assert.Equal(t, models.ActionView, views[1].Action)
	assert.Equal(t, "fsl-1", views[0].Actor.UserID)

	_, err = e.reg.ListCaseEvidence(ctx, admin, "CASE-404")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLinkAndCorrelate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createCase(t, "CASE-1")
	e.createCase(t, "CASE-2")
	for _, id := range []string{"A", "B", "C", "D", "E"} {
		caseID := "CASE-1"
		if id == "E" {
			caseID = "CASE-2"
		}
		in := registry.UploadInput{CaseID: caseID, EvidenceID: id, Type: models.EvidenceDocument, FileName: id + ".pdf", Content: strings.NewReader(id)}
		if id == "D" {
			in.Visibility = models.Visibility{IsRestricted: true}
		}
		e.upload(t, in)
	}

	_, err := e.reg.LinkEvidence(ctx, officer, "A", "A")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = e.reg.LinkEvidence(ctx, officer, "A", "Z")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	res, err := e.reg.LinkEvidence(ctx, officer, "A", "B")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Audit.Recorded)

	res, err = e.reg.LinkEvidence(ctx, officer, "B", "A")
	require.NoError(t, err)
	assert.False(t, res.Created, "linking is idempotent")

	for _, pair := range [][2]string{{"B", "C"}, {"C", "A"}, {"C", "E"}} {
		_, err := e.reg.LinkEvidence(ctx, officer, pair[0], pair[1])
		require.NoError(t, err)
	}
	_, err = e.reg.LinkEvidence(ctx, admin, "C", "D")
	require.NoError(t, err)

	a, err := e.ms.GetEvidence(ctx, "A")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"B", "C"}, a.LinkedEvidenceIDs)

	links, err := e.ledger.Query(ctx, audit.Filter{Action: models.ActionLinkEvidence})
	require.NoError(t, err)
	assert.Len(t, links, 6, "cross-case link records on both cases")
	crossCase, err := e.ledger.Query(ctx, audit.Filter{CaseID: "CASE-2", Action: models.ActionLinkEvidence})
	require.NoError(t, err)
	assert.Len(t, crossCase, 1)

	corr, err := e.reg.Correlate(ctx, officer, "A", 1)
	require.NoError(t, err)
	depths := map[string]int{}
	for _, n := range corr.Nodes {
		depths[n.Evidence.ID] = n.Depth
	}
	assert.Equal(t, map[string]int{"A": 0, "B": 1, "C": 1}, depths)

	corr, err = e.reg.Correlate(ctx, officer, "A", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, corr.Depth, "depth is clamped to the maximum")
	depths = map[string]int{}
	for _, n := range corr.Nodes {
		depths[n.Evidence.ID] = n.Depth
	}
	assert.Equal(t, map[string]int{"A": 0, "B": 1, "C": 1, "E": 2}, depths, "hidden D is skipped")
	assert.Contains(t, corr.Edges, registry.Edge{From: "A", To: "B"})
	assert.Contains(t, corr.Edges, registry.Edge{From: "C", To: "E"})
	assert.Len(t, corr.Edges, 4)

	corr, err = e.reg.Correlate(ctx, admin, "A", 5)
	require.NoError(t, err)
	assert.Len(t, corr.Nodes, 5)

	_, err = e.reg.Correlate(ctx, officer, "D", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDocuments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createCase(t, "CASE-1")
	e.upload(t, registry.UploadInput{CaseID: "CASE-1", EvidenceID: "EV-1", Type: models.EvidenceImage, FileName: "a.jpg", Content: strings.NewReader("a")})

	_, _, err := e.reg.CreateDocument(ctx, officer, registry.DocumentInput{CaseID: "CASE-1", Type: "MEMO", Title: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, _, err = e.reg.CreateDocument(ctx, officer, registry.DocumentInput{CaseID: "CASE-1", Type: models.DocumentFIR, Title: "FIR 12/2024", LinkedEvidenceIDs: []string{"EV-404"}})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, _, err = e.reg.CreateDocument(ctx, officer, registry.DocumentInput{CaseID: "CASE-404", Type: models.DocumentFIR, Title: "FIR"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	d, receipt, err := e.reg.CreateDocument(ctx, officer, registry.DocumentInput{
		CaseID:            "CASE-1",
		Type:              models.DocumentFIR,
		Title:             "FIR 12/2024",
		Content:           "First information report",
		LinkedEvidenceIDs: []string{"EV-1", "EV-1"},
	})
	require.NoError(t, err)
	assert.True(t, receipt.Recorded)
	assert.Equal(t, []string{"EV-1"}, d.LinkedEvidenceIDs)
	assert.Equal(t, "officer-1", d.IssuedBy)

	docs, err := e.reg.ListDocuments(ctx, "CASE-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, d.ID, docs[0].ID)

	entries, err := e.ledger.Query(ctx, audit.Filter{CaseID: "CASE-1", Action: models.ActionCreateDoc})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Legal document created: FIR FIR 12/2024", entries[0].Description)
}

func TestFrozenCaseRejectsUploads(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createCase(t, "CASE-1")
	_, _, err := e.machine.FreezeCase(ctx, admin, "CASE-1", "")
	require.NoError(t, err)

	_, _, err = e.reg.UploadEvidence(ctx, officer, registry.UploadInput{CaseID: "CASE-1", Type: models.EvidenceImage, FileName: "a.jpg", Content: strings.NewReader("a")})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

// Upload, verify, tamper, certify and approve, then read the case trail back.
func TestEvidenceLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createCase(t, "CASE-1")

	ev := e.upload(t, registry.UploadInput{CaseID: "CASE-1", EvidenceID: "EV-1", Type: models.EvidenceImage, FileName: "scene.jpg", Content: strings.NewReader("abc")})
	assert.Equal(t, hasher.DigestBytes([]byte("abc")), ev.FileHash)
	assert.Equal(t, models.ClassificationSecondary, ev.Classification)
	assert.Equal(t, models.IntegrityNotChecked, ev.IntegrityStatus)

	e.clock.Advance(time.Minute)
	out, _, err := e.verifier.Verify(ctx, analyst, "EV-1")
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.Equal(t, models.IntegrityVerified, out.Status)

	require.NoError(t, e.files.Write(ctx, ev.FileRef, strings.NewReader("abd")))
	e.clock.Advance(time.Minute)
	out, _, err = e.verifier.Verify(ctx, analyst, "EV-1")
	require.NoError(t, err)
	assert.False(t, out.Matched)
	assert.Equal(t, models.IntegrityCompromised, out.Status)

	e.clock.Advance(time.Minute)
	_, _, err = e.machine.ApproveForLegal(ctx, counsel, "EV-1")
	assert.ErrorIs(t, err, apperr.ErrAdmissibility)

	e.clock.Advance(time.Minute)
	_, _, err = e.machine.IssueCertificate(ctx, analyst, "EV-1", "CERT-1")
	require.NoError(t, err)

	e.clock.Advance(time.Minute)
	approved, _, err := e.machine.ApproveForLegal(ctx, counsel, "EV-1")
	require.NoError(t, err)
	assert.True(t, approved.ApprovedForLegal)

	trail, err := e.ledger.Query(ctx, audit.Filter{CaseID: "CASE-1"})
	require.NoError(t, err)
	for i := 1; i < len(trail); i++ {
		assert.True(t, trail[i-1].Timestamp.After(trail[i].Timestamp), "strictly descending at %d", i)
	}

	var got []string
	for i := len(trail) - 1; i >= 0; i-- {
		got = append(got, string(trail[i].Action)+"/"+string(trail[i].Result))
	}
	assert.Equal(t, []string{
		"CREATE_CASE/SUCCESS",
		"UPLOAD/SUCCESS",
		"VERIFY/MATCH",
		"VERIFY/MISMATCH",
		"APPROVE/REJECTED",
		"ISSUE_CERT/SUCCESS",
		"APPROVE/SUCCESS",
	}, got)

	for _, entry := range trail {
		ok, err := e.ledger.VerifyEntry(ctx, entry.ID)
		require.NoError(t, err)
		assert.True(t, ok, "entry %s re-verifies", entry.ID)
	}
}
