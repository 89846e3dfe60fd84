// Package audit implements the append-only audit ledger: entry creation with
// a per-entry integrity digest, best-effort recording on behalf of domain
// operations, ordered queries, re-verification, schema reconciliation, and
// the outbox streamer that hands entries to the external ledger.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/metrics"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
	"github.com/Kaaval/Main/evidence-ledger/internal/store"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 100 * time.Millisecond
	maxBackoff         = 2 * time.Second
)

// Draft is an entry before the ledger assigns its id, timestamp and digest.
// A zero Actor is recorded as the system principal; an empty Result as SUCCESS.
type Draft struct {
	CaseID      string
	EvidenceID  string
	Action      models.AuditAction
	Actor       models.Principal
	Result      models.AuditResult
	Description string
	Detail      models.AuditDetail
}

// Receipt reports the outcome of a best-effort Record call. It is returned
// to API callers alongside the primary operation's result.
type Receipt struct {
	Recorded  bool       `json:"recorded"`
	EntryID   string     `json:"entryId,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Filter constrains Query. Zero fields are unconstrained.
type Filter = store.AuditFilter

type Config struct {
	MaxAttempts int
	Backoff     time.Duration
}

type Ledger struct {
	store store.AuditStore
	cfg   Config

	// NowFunc and Sleep are replaceable in tests.
	NowFunc func() time.Time
	Sleep   func(time.Duration)

	mu   sync.Mutex
	last time.Time
}

func New(s store.AuditStore, cfg Config) *Ledger {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &Ledger{
		store:   s,
		cfg:     cfg,
		NowFunc: time.Now,
		Sleep:   time.Sleep,
	}
}

// nextTimestamp returns a UTC timestamp strictly after every timestamp this
// ledger has handed out before.
func (l *Ledger) nextTimestamp() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.NowFunc().UTC().Round(0)
	if !ts.After(l.last) {
		ts = l.last.Add(time.Nanosecond)
	}
	l.last = ts
	return ts
}

// Append persists one entry. The entry row and its outbox row are written
// atomically; a store failure is returned as a persistence error.
func (l *Ledger) Append(ctx context.Context, d Draft) (models.AuditEntry, error) {
	if !d.Action.Valid() {
		return models.AuditEntry{}, apperr.Validation("unknown audit action %q", d.Action)
	}
	actor := d.Actor
	if actor.ID == "" {
		actor = models.SystemPrincipal
	}
	result := d.Result
	if result == "" {
		result = models.ResultSuccess
	}

	e := models.AuditEntry{
		ID:          uuid.NewString(),
		CaseID:      d.CaseID,
		EvidenceID:  d.EvidenceID,
		Action:      d.Action,
		Actor:       models.ActorOf(actor),
		Timestamp:   l.nextTimestamp(),
		Result:      result,
		Description: d.Description,
		Detail:      d.Detail,
	}
	digest, err := EntryDigest(e)
	if err != nil {
		return models.AuditEntry{}, apperr.Persistence(err, "compute entry digest")
	}
	e.MetadataHash = digest

	if err := l.store.InsertAuditEntry(ctx, e); err != nil {
		return models.AuditEntry{}, apperr.Persistence(err, "append audit entry")
	}
	return e, nil
}

// Record appends d on behalf of a domain operation that has already
// succeeded. Transient failures are retried with exponential backoff; the
// final failure is logged as an operator alert and reported in the receipt,
// never returned as an error.
func (l *Ledger) Record(ctx context.Context, d Draft) Receipt {
	// the primary mutation is already durable; a cancelled request must not
	// drop its audit entry
	ctx = context.WithoutCancel(ctx)

	backoff := l.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		metrics.AuditAttempt(ctx)
		e, err := l.Append(ctx, d)
		if err == nil {
			ts := e.Timestamp
			return Receipt{Recorded: true, EntryID: e.ID, Timestamp: &ts}
		}
		lastErr = err
		metrics.AuditFailure(ctx)
		log.Printf("[audit.ledger] append attempt %d/%d failed: action=%s case=%s evidence=%s err=%v",
			attempt, l.cfg.MaxAttempts, d.Action, d.CaseID, d.EvidenceID, err)

		if apperr.KindOf(err) == apperr.KindValidation {
			break
		}
		if attempt < l.cfg.MaxAttempts {
			l.Sleep(backoff)
			if backoff < maxBackoff {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
		}
	}

	metrics.AuditAlert(ctx)
	log.Printf("[audit.ledger] ALERT audit entry lost after retries: action=%s case=%s evidence=%s actor=%s err=%v",
		d.Action, d.CaseID, d.EvidenceID, d.Actor.ID, lastErr)
	return Receipt{Recorded: false, Error: apperr.Message(lastErr)}
}

// Query returns entries matching every set filter field, newest first.
func (l *Ledger) Query(ctx context.Context, f Filter) ([]models.AuditEntry, error) {
	entries, err := l.store.QueryAuditEntries(ctx, f)
	if err != nil {
		return nil, apperr.Persistence(err, "query audit ledger")
	}
	return entries, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (models.AuditEntry, error) {
	e, err := l.store.GetAuditEntry(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.AuditEntry{}, apperr.NotFound("audit entry %s not found", id)
		}
		return models.AuditEntry{}, apperr.Persistence(err, "load audit entry")
	}
	return e, nil
}

// VerifyEntry recomputes the digest of a stored entry and compares it with
// the stored metadata hash.
func (l *Ledger) VerifyEntry(ctx context.Context, id string) (bool, error) {
	e, err := l.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return entryIntact(e)
}

func entryIntact(e models.AuditEntry) (bool, error) {
	if e.MetadataHash == "" {
		return false, nil
	}
	digest, err := EntryDigest(e)
	if err != nil {
		return false, apperr.Persistence(err, "compute entry digest")
	}
	return digest == e.MetadataHash, nil
}

type VerifyReport struct {
	Checked int      `json:"checked"`
	Failed  []string `json:"failed"`
}

// VerifyAll re-verifies every entry in the ledger.
func (l *Ledger) VerifyAll(ctx context.Context) (VerifyReport, error) {
	entries, err := l.Query(ctx, Filter{})
	if err != nil {
		return VerifyReport{}, err
	}
	report := VerifyReport{Failed: []string{}}
	for _, e := range entries {
		ok, err := entryIntact(e)
		if err != nil {
			return report, err
		}
		report.Checked++
		if !ok {
			report.Failed = append(report.Failed, e.ID)
		}
	}
	return report, nil
}

type ReconcileReport struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
}

// legacyDetails is the JSON blob older rows carried instead of detail columns.
type legacyDetails struct {
	Hash         string `json:"hash"`
	FileName     string `json:"fileName"`
	FileType     string `json:"fileType"`
	FileURI      string `json:"fileUri"`
	Location     string `json:"location"`
	Title        string `json:"title"`
	Officer      string `json:"officer"`
	MetadataHash string `json:"metadataHash"`
	PreviousHash string `json:"previousHash"`
}

// Reconcile backfills rows written before the detail columns existed. Legacy
// JSON details are unpacked into empty columns only, a missing metadata hash
// is computed over the reconciled row, and the legacy blob is cleared. A
// second run finds nothing to do.
func (l *Ledger) Reconcile(ctx context.Context) (ReconcileReport, error) {
	rows, err := l.store.ListAuditRowsForBackfill(ctx)
	if err != nil {
		return ReconcileReport{}, apperr.Persistence(err, "list rows for reconciliation")
	}

	report := ReconcileReport{Scanned: len(rows)}
	for _, row := range rows {
		var legacy legacyDetails
		if row.LegacyDetails != "" {
			if err := json.Unmarshal([]byte(row.LegacyDetails), &legacy); err != nil {
				log.Printf("[audit.ledger] reconcile: entry %s has non-JSON legacy details, dropping blob", row.Entry.ID)
				legacy = legacyDetails{}
			}
		}
		fill := models.AuditDetail(legacy)

		entry := row.Entry
		entry.Detail = coalesceDetail(entry.Detail, fill)
		hash := entry.MetadataHash
		if !row.HasHash {
			if hash, err = EntryDigest(entry); err != nil {
				return report, apperr.Persistence(err, "compute entry digest")
			}
		}

		changed, err := l.store.ApplyAuditBackfill(ctx, entry.ID, fill, hash)
		if err != nil {
			return report, apperr.Persistence(err, "backfill entry %s", entry.ID)
		}
		if changed {
			report.Updated++
		}
	}
	log.Printf("[audit.ledger] reconcile: scanned=%d updated=%d", report.Scanned, report.Updated)
	return report, nil
}

// coalesceDetail keeps every non-empty field of cur and fills the rest from fill.
func coalesceDetail(cur, fill models.AuditDetail) models.AuditDetail {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return models.AuditDetail{
		Hash:         pick(cur.Hash, fill.Hash),
		FileName:     pick(cur.FileName, fill.FileName),
		FileType:     pick(cur.FileType, fill.FileType),
		FileURI:      pick(cur.FileURI, fill.FileURI),
		Location:     pick(cur.Location, fill.Location),
		Title:        pick(cur.Title, fill.Title),
		Officer:      pick(cur.Officer, fill.Officer),
		MetadataHash: pick(cur.MetadataHash, fill.MetadataHash),
		PreviousHash: pick(cur.PreviousHash, fill.PreviousHash),
	}
}
