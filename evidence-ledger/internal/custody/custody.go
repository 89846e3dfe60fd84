// Package custody drives the evidence admissibility state machine
// (classification, Section 63 certification, legal approval) and the
// custody and status transitions of cases and evidence.
package custody

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
	"github.com/Kaaval/Main/evidence-ledger/internal/store"
	"github.com/Kaaval/Main/evidence-ledger/internal/verifier"
)

// State is the admissibility state of one evidence item.
type State string

const (
	StatePrimary              State = "PRIMARY"
	StateSecondaryUncertified State = "SECONDARY_UNCERTIFIED"
	StateSecondaryCertified   State = "SECONDARY_CERTIFIED"
)

// Classify decides the classification of a new evidence item. It is called
// once, at creation; later changes to either input never reclassify.
func Classify(sourceHash, liftingVideoRef string) models.Classification {
	if strings.TrimSpace(sourceHash) != "" && strings.TrimSpace(liftingVideoRef) != "" {
		return models.ClassificationPrimary
	}
	return models.ClassificationSecondary
}

func StateOf(e models.Evidence) State {
	switch {
	case e.Classification == models.ClassificationPrimary:
		return StatePrimary
	case e.CertificateRef != "":
		return StateSecondaryCertified
	default:
		return StateSecondaryUncertified
	}
}

// Machine applies admissibility, custody and case status transitions. Every
// transition reads, modifies and writes one entity and records one ledger
// entry. Mutations of the same entity serialize through the locker shared
// with the verifier, so a certificate or approval never races a digest
// update.
type Machine struct {
	cases    store.CaseStore
	evidence store.EvidenceStore
	ledger   *audit.Ledger
	locker   verifier.Locker

	NowFunc func() time.Time
}

func New(cases store.CaseStore, evidence store.EvidenceStore, ledger *audit.Ledger, locker verifier.Locker) *Machine {
	if locker == nil {
		locker = verifier.NewLocalLocker()
	}
	return &Machine{
		cases:    cases,
		evidence: evidence,
		ledger:   ledger,
		locker:   locker,
		NowFunc:  time.Now,
	}
}

func (m *Machine) lock(ctx context.Context, key string) (func(), error) {
	unlock, err := m.locker.Lock(ctx, key)
	if err != nil {
		return nil, apperr.Persistence(err, "acquire lock")
	}
	return unlock, nil
}

func (m *Machine) loadEvidence(ctx context.Context, id string) (models.Evidence, error) {
	e, err := m.evidence.GetEvidence(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Evidence{}, apperr.NotFound("evidence %s not found", id)
		}
		return models.Evidence{}, apperr.Persistence(err, "load evidence")
	}
	return e, nil
}

func (m *Machine) loadCase(ctx context.Context, id string) (models.Case, error) {
	c, err := m.cases.GetCase(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Case{}, apperr.NotFound("case %s not found", id)
		}
		return models.Case{}, apperr.Persistence(err, "load case")
	}
	return c, nil
}

func (m *Machine) saveEvidence(ctx context.Context, e models.Evidence) error {
	if err := m.evidence.UpdateEvidence(ctx, e); err != nil {
		return apperr.Persistence(err, "update evidence")
	}
	return nil
}

func (m *Machine) saveCase(ctx context.Context, c *models.Case) error {
	c.UpdatedAt = m.NowFunc().UTC()
	if err := m.cases.UpdateCase(ctx, *c); err != nil {
		return apperr.Persistence(err, "update case")
	}
	return nil
}

// IssueCertificate attaches a Section 63 certificate to a SECONDARY item.
// Issuing again overwrites the reference and records a new entry.
func (m *Machine) IssueCertificate(ctx context.Context, actor models.Principal, evidenceID, certificateRef string) (models.Evidence, audit.Receipt, error) {
	certificateRef = strings.TrimSpace(certificateRef)
	if certificateRef == "" {
		return models.Evidence{}, audit.Receipt{}, apperr.Validation("certificate reference is required")
	}

	unlock, err := m.lock(ctx, evidenceID)
	if err != nil {
		return models.Evidence{}, audit.Receipt{}, err
	}
	defer unlock()

	e, err := m.loadEvidence(ctx, evidenceID)
	if err != nil {
		return models.Evidence{}, audit.Receipt{}, err
	}
	if e.Classification == models.ClassificationPrimary {
		return models.Evidence{}, audit.Receipt{}, apperr.Admissibility("primary evidence does not take a certificate")
	}

	now := m.NowFunc().UTC()
	e.CertificateRef = certificateRef
	e.CertificateIssued = &now
	if err := m.saveEvidence(ctx, e); err != nil {
		return models.Evidence{}, audit.Receipt{}, err
	}
	log.Printf("[custody] evidence=%s certificate issued by=%s", e.ID, actor.ID)

	receipt := m.ledger.Record(ctx, audit.Draft{
		CaseID:      e.CaseID,
		EvidenceID:  e.ID,
		Action:      models.ActionIssueCert,
		Actor:       actor,
		Description: "Section 63 Certificate issued for Secondary Evidence",
		Detail:      models.AuditDetail{FileName: e.FileName, Title: certificateRef},
	})
	return e, receipt, nil
}

// ApproveForLegal marks an item admissible. PRIMARY items and certified
// SECONDARY items qualify. A rejected attempt leaves the item untouched and
// is recorded as APPROVE/REJECTED.
func (m *Machine) ApproveForLegal(ctx context.Context, actor models.Principal, evidenceID string) (models.Evidence, audit.Receipt, error) {
	unlock, err := m.lock(ctx, evidenceID)
	if err != nil {
		return models.Evidence{}, audit.Receipt{}, err
	}
	defer unlock()

	e, err := m.loadEvidence(ctx, evidenceID)
	if err != nil {
		return models.Evidence{}, audit.Receipt{}, err
	}

	if StateOf(e) == StateSecondaryUncertified {
		reject := apperr.Admissibility("secondary evidence requires certificate")
		log.Printf("[custody] evidence=%s approval rejected: %s", e.ID, reject.Msg)
		receipt := m.ledger.Record(ctx, audit.Draft{
			CaseID:      e.CaseID,
			EvidenceID:  e.ID,
			Action:      models.ActionApprove,
			Actor:       actor,
			Result:      models.ResultRejected,
			Description: "Legal approval rejected: " + reject.Msg,
			Detail:      models.AuditDetail{FileName: e.FileName},
		})
		return models.Evidence{}, receipt, reject
	}

	e.ApprovedForLegal = true
	if err := m.saveEvidence(ctx, e); err != nil {
		return models.Evidence{}, audit.Receipt{}, err
	}

	desc := "Approved for legal proceedings as Primary Evidence"
	if e.Classification != models.ClassificationPrimary {
		desc = "Approved for legal proceedings with Section 63 Certificate"
	}
	receipt := m.ledger.Record(ctx, audit.Draft{
		CaseID:      e.CaseID,
		EvidenceID:  e.ID,
		Action:      models.ActionApprove,
		Actor:       actor,
		Description: desc,
		Detail:      models.AuditDetail{FileName: e.FileName, Title: e.CertificateRef},
	})
	return e, receipt, nil
}
