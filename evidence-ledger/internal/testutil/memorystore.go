// Package testutil holds in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Kaaval/Main/evidence-ledger/internal/models"
	"github.com/Kaaval/Main/evidence-ledger/internal/store"
)

// ErrInjected is returned by MemoryStore when a failure has been injected.
var ErrInjected = errors.New("injected store failure")

type outboxState struct {
	status     string
	archiveKey string
	lastErr    string
}

// MemoryStore is an in-memory store.Store and store.OutboxStore. The zero
// value is not usable; call NewMemoryStore.
type MemoryStore struct {
	mu sync.Mutex

	cases    map[string]models.Case
	evidence map[string]models.Evidence
	docs     map[string][]models.LegalDocument
	audit    []models.AuditEntry
	outbox   map[string]*outboxState

	// FailAuditInserts makes the next n InsertAuditEntry calls fail.
	FailAuditInserts int
	// FailEvidenceUpdates makes the next n UpdateEvidence calls fail.
	FailEvidenceUpdates int
	// AuditInsertCalls counts every InsertAuditEntry call, failed or not.
	AuditInsertCalls int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:    map[string]models.Case{},
		evidence: map[string]models.Evidence{},
		docs:     map[string][]models.LegalDocument{},
		outbox:   map[string]*outboxState{},
	}
}

var (
	_ store.Store       = (*MemoryStore)(nil)
	_ store.OutboxStore = (*MemoryStore)(nil)
)

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) CreateCase(ctx context.Context, c models.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[c.ID]; ok {
		return store.ErrConflict
	}
	m.cases[c.ID] = c
	return nil
}

func (m *MemoryStore) GetCase(ctx context.Context, id string) (models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return models.Case{}, store.ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) UpdateCase(ctx context.Context, c models.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[c.ID]; !ok {
		return store.ErrNotFound
	}
	m.cases[c.ID] = c
	return nil
}

func (m *MemoryStore) ListCases(ctx context.Context, f store.CaseFilter) ([]models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Case{}
	for _, c := range m.cases {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Custodian != "" && c.Custodian != f.Custodian {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []models.Case{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) CreateEvidence(ctx context.Context, e models.Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.evidence[e.ID]; ok {
		return store.ErrConflict
	}
	m.evidence[e.ID] = cloneEvidence(e)
	return nil
}

func (m *MemoryStore) GetEvidence(ctx context.Context, id string) (models.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.evidence[id]
	if !ok {
		return models.Evidence{}, store.ErrNotFound
	}
	return cloneEvidence(e), nil
}

func (m *MemoryStore) UpdateEvidence(ctx context.Context, e models.Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailEvidenceUpdates > 0 {
		m.FailEvidenceUpdates--
		return ErrInjected
	}
	cur, ok := m.evidence[e.ID]
	if !ok {
		return store.ErrNotFound
	}
	// creation facts are immutable, matching the SQL store
	e.CaseID = cur.CaseID
	e.Type = cur.Type
	e.UploadedBy = cur.UploadedBy
	e.UploadedAt = cur.UploadedAt
	e.Classification = cur.Classification
	e.SourceHash = cur.SourceHash
	e.LinkedEvidenceIDs = cur.LinkedEvidenceIDs
	m.evidence[e.ID] = cloneEvidence(e)
	return nil
}

func (m *MemoryStore) ListEvidenceByCase(ctx context.Context, caseID string) ([]models.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Evidence{}
	for _, e := range m.evidence {
		if e.CaseID == caseID {
			out = append(out, cloneEvidence(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out, nil
}

func (m *MemoryStore) LinkEvidence(ctx context.Context, a, b string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ea, ok := m.evidence[a]
	if !ok {
		return store.ErrNotFound
	}
	eb, ok := m.evidence[b]
	if !ok {
		return store.ErrNotFound
	}
	if !ea.IsLinked(b) {
		ea.LinkedEvidenceIDs = append(append([]string{}, ea.LinkedEvidenceIDs...), b)
		m.evidence[a] = ea
	}
	if !eb.IsLinked(a) {
		eb.LinkedEvidenceIDs = append(append([]string{}, eb.LinkedEvidenceIDs...), a)
		m.evidence[b] = eb
	}
	return nil
}

func (m *MemoryStore) CreateDocument(ctx context.Context, d models.LegalDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.docs[d.CaseID] {
		if existing.ID == d.ID {
			return store.ErrConflict
		}
	}
	m.docs[d.CaseID] = append(m.docs[d.CaseID], d)
	return nil
}

func (m *MemoryStore) ListDocuments(ctx context.Context, caseID string) ([]models.LegalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.LegalDocument{}, m.docs[caseID]...), nil
}

func (m *MemoryStore) InsertAuditEntry(ctx context.Context, e models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuditInsertCalls++
	if m.FailAuditInserts > 0 {
		m.FailAuditInserts--
		return ErrInjected
	}
	for _, existing := range m.audit {
		if existing.ID == e.ID {
			return store.ErrConflict
		}
	}
	m.audit = append(m.audit, e)
	m.outbox[e.ID] = &outboxState{status: "pending"}
	return nil
}

func (m *MemoryStore) GetAuditEntry(ctx context.Context, id string) (models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.audit {
		if e.ID == id {
			return e, nil
		}
	}
	return models.AuditEntry{}, store.ErrNotFound
}

// QueryAuditEntries returns matches newest first; equal timestamps keep
// reverse insertion order.
func (m *MemoryStore) QueryAuditEntries(ctx context.Context, f store.AuditFilter) ([]models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AuditEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		if f.Matches(m.audit[i]) {
			out = append(out, m.audit[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ListAuditRowsForBackfill reports rows without a metadata hash. The memory
// store has no legacy blob column.
func (m *MemoryStore) ListAuditRowsForBackfill(ctx context.Context) ([]store.BackfillRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.BackfillRow
	for _, e := range m.audit {
		if e.MetadataHash == "" {
			out = append(out, store.BackfillRow{Entry: e})
		}
	}
	return out, nil
}

func (m *MemoryStore) ApplyAuditBackfill(ctx context.Context, id string, d models.AuditDetail, metadataHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.audit {
		if e.ID != id {
			continue
		}
		if e.MetadataHash != "" {
			return false, nil
		}
		e.Detail = fillDetail(e.Detail, d)
		e.MetadataHash = metadataHash
		m.audit[i] = e
		return true, nil
	}
	return false, nil
}

func (m *MemoryStore) ClaimPendingOutbox(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	var out []models.AuditEntry
	for _, e := range m.audit {
		st := m.outbox[e.ID]
		if st == nil || (st.status != "pending" && st.status != "failed") {
			continue
		}
		st.status = "in_progress"
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkOutboxResult(ctx context.Context, entryID, archiveKey string, ok bool, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.outbox[entryID]
	if st == nil {
		return store.ErrNotFound
	}
	if ok {
		st.status, st.archiveKey, st.lastErr = "done", archiveKey, ""
	} else {
		st.status, st.lastErr = "failed", lastErr
	}
	return nil
}

// OutboxStatus returns the publication status of an entry, or "" if unknown.
func (m *MemoryStore) OutboxStatus(entryID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st := m.outbox[entryID]; st != nil {
		return st.status
	}
	return ""
}

// AuditEntries returns every entry in insertion order.
func (m *MemoryStore) AuditEntries() []models.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AuditEntry{}, m.audit...)
}

// PutAuditEntry stores e as is, bypassing the outbox. Tests use it to plant
// legacy or tampered rows.
func (m *MemoryStore) PutAuditEntry(e models.AuditEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.audit {
		if existing.ID == e.ID {
			m.audit[i] = e
			return
		}
	}
	m.audit = append(m.audit, e)
}

func cloneEvidence(e models.Evidence) models.Evidence {
	e.LinkedEvidenceIDs = append([]string{}, e.LinkedEvidenceIDs...)
	e.Visibility.AllowedRoles = append([]models.Role(nil), e.Visibility.AllowedRoles...)
	e.Visibility.AllowedDesignations = append([]string(nil), e.Visibility.AllowedDesignations...)
	e.Visibility.AllowedUserIDs = append([]string(nil), e.Visibility.AllowedUserIDs...)
	if e.LastVerifiedAt != nil {
		t := *e.LastVerifiedAt
		e.LastVerifiedAt = &t
	}
	if e.CertificateIssued != nil {
		t := *e.CertificateIssued
		e.CertificateIssued = &t
	}
	return e
}

func fillDetail(cur, d models.AuditDetail) models.AuditDetail {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return models.AuditDetail{
		Hash:         pick(cur.Hash, d.Hash),
		FileName:     pick(cur.FileName, d.FileName),
		FileType:     pick(cur.FileType, d.FileType),
		FileURI:      pick(cur.FileURI, d.FileURI),
		Location:     pick(cur.Location, d.Location),
		Title:        pick(cur.Title, d.Title),
		Officer:      pick(cur.Officer, d.Officer),
		MetadataHash: pick(cur.MetadataHash, d.MetadataHash),
		PreviousHash: pick(cur.PreviousHash, d.PreviousHash),
	}
}

// Clock is a manually advanced time source for NowFunc hooks.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock { return &Clock{now: start} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
