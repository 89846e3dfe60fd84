package store

import (
	"context"
	"errors"

	"github.com/Kaaval/Main/evidence-ledger/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// Store is the durable persistence contract of the ledger engine. It is the
// only path through which case, evidence, document and audit rows change.
type Store interface {
	CaseStore
	EvidenceStore
	DocumentStore
	AuditStore
	Ping(ctx context.Context) error
}

type CaseStore interface {
	CreateCase(ctx context.Context, c models.Case) error
	GetCase(ctx context.Context, id string) (models.Case, error)
	UpdateCase(ctx context.Context, c models.Case) error
	ListCases(ctx context.Context, filter CaseFilter) ([]models.Case, error)
}

type EvidenceStore interface {
	CreateEvidence(ctx context.Context, e models.Evidence) error
	GetEvidence(ctx context.Context, id string) (models.Evidence, error)
	UpdateEvidence(ctx context.Context, e models.Evidence) error
	ListEvidenceByCase(ctx context.Context, caseID string) ([]models.Evidence, error)
	// LinkEvidence adds a and b to each other's link sets atomically.
	LinkEvidence(ctx context.Context, a, b string) error
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, d models.LegalDocument) error
	ListDocuments(ctx context.Context, caseID string) ([]models.LegalDocument, error)
}

// AuditStore persists ledger entries. Entries are insert-only; the single
// exception is ApplyAuditBackfill, which only fills NULL columns.
type AuditStore interface {
	InsertAuditEntry(ctx context.Context, e models.AuditEntry) error
	GetAuditEntry(ctx context.Context, id string) (models.AuditEntry, error)
	QueryAuditEntries(ctx context.Context, filter AuditFilter) ([]models.AuditEntry, error)
	ListAuditRowsForBackfill(ctx context.Context) ([]BackfillRow, error)
	ApplyAuditBackfill(ctx context.Context, id string, detail models.AuditDetail, metadataHash string) (bool, error)
}

// OutboxStore tracks hand-off of ledger entries to the external ledger.
type OutboxStore interface {
	ClaimPendingOutbox(ctx context.Context, limit int) ([]models.AuditEntry, error)
	MarkOutboxResult(ctx context.Context, entryID string, archiveKey string, ok bool, lastErr string) error
}

type CaseFilter struct {
	Status    models.CaseStatus
	Custodian string
	Limit     int
	Offset    int
}

// AuditFilter constrains a ledger query. Zero fields are unconstrained.
type AuditFilter struct {
	CaseID     string
	EvidenceID string
	Action     models.AuditAction
	UserID     string
	Limit      int
}

// Matches reports whether e satisfies every set field of f.
func (f AuditFilter) Matches(e models.AuditEntry) bool {
	if f.CaseID != "" && e.CaseID != f.CaseID {
		return false
	}
	if f.EvidenceID != "" && e.EvidenceID != f.EvidenceID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.UserID != "" && e.Actor.UserID != f.UserID {
		return false
	}
	return true
}

// BackfillRow is a ledger row that predates the current detail schema:
// either it still carries a legacy JSON details blob or it has no
// metadata hash. Entry holds the column values as stored.
type BackfillRow struct {
	Entry         models.AuditEntry
	LegacyDetails string
	HasHash       bool
}
