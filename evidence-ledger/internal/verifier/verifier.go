// Package verifier recomputes evidence file digests on demand and maintains
// the integrity status of each evidence item.
//
// A mismatch marks the item COMPROMISED. The flag is sticky: later
// verifications that match keep it COMPROMISED until an administrator
// clears it. Files that cannot be read are reported as unavailable and never
// change the integrity status.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/filestore"
	"github.com/Kaaval/Main/evidence-ledger/internal/hasher"
	"github.com/Kaaval/Main/evidence-ledger/internal/metrics"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
	"github.com/Kaaval/Main/evidence-ledger/internal/store"
)

// Outcome is the result of one verification.
type Outcome struct {
	EvidenceID   string                 `json:"evidenceId"`
	Matched      bool                   `json:"matched"`
	Status       models.IntegrityStatus `json:"status"`
	Sticky       bool                   `json:"sticky"`
	PreviousHash string                 `json:"previousHash"`
	CurrentHash  string                 `json:"currentHash"`
	VerifiedAt   time.Time              `json:"verifiedAt"`
}

type Verifier struct {
	evidence store.EvidenceStore
	files    filestore.Store
	ledger   *audit.Ledger
	locker   Locker

	NowFunc func() time.Time
}

// New builds a verifier. A nil locker serializes in process only.
func New(evidence store.EvidenceStore, files filestore.Store, ledger *audit.Ledger, locker Locker) *Verifier {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Verifier{
		evidence: evidence,
		files:    files,
		ledger:   ledger,
		locker:   locker,
		NowFunc:  time.Now,
	}
}

// Verify recomputes the digest of the evidence file and compares it with the
// stored one. The record always receives the fresh digest, the resulting
// status and the verification time. Calls for the same id are serialized;
// each one appends its own VERIFY entry.
func (v *Verifier) Verify(ctx context.Context, actor models.Principal, evidenceID string) (Outcome, audit.Receipt, error) {
	unlock, err := v.locker.Lock(ctx, evidenceID)
	if err != nil {
		return Outcome{}, audit.Receipt{}, apperr.Persistence(err, "acquire verification lock")
	}
	defer unlock()

	e, err := v.load(ctx, evidenceID)
	if err != nil {
		return Outcome{}, audit.Receipt{}, err
	}

	digest, err := v.digest(ctx, e)
	if err != nil {
		metrics.VerifyOutcome(ctx, string(models.ResultUnavailable))
		log.Printf("[verifier] evidence=%s file unavailable: %v", e.ID, err)
		receipt := v.ledger.Record(ctx, audit.Draft{
			CaseID:      e.CaseID,
			EvidenceID:  e.ID,
			Action:      models.ActionVerify,
			Actor:       actor,
			Result:      models.ResultUnavailable,
			Description: "Integrity check could not read the evidence file",
			Detail:      models.AuditDetail{FileName: e.FileName, PreviousHash: e.FileHash},
		})
		return Outcome{}, receipt, err
	}

	previous := e.FileHash
	matched := digest == previous
	wasCompromised := e.IntegrityStatus == models.IntegrityCompromised

	status := models.IntegrityVerified
	if !matched || wasCompromised {
		status = models.IntegrityCompromised
	}
	now := v.NowFunc().UTC()

	e.FileHash = digest
	e.IntegrityStatus = status
	e.LastVerifiedAt = &now
	if err := v.evidence.UpdateEvidence(ctx, e); err != nil {
		return Outcome{}, audit.Receipt{}, apperr.Persistence(err, "update evidence integrity")
	}

	out := Outcome{
		EvidenceID:   e.ID,
		Matched:      matched,
		Status:       status,
		Sticky:       matched && wasCompromised,
		PreviousHash: previous,
		CurrentHash:  digest,
		VerifiedAt:   now,
	}

	result := models.ResultMatch
	desc := "Integrity verified: digest matches"
	switch {
	case !matched:
		result = models.ResultMismatch
		desc = "Integrity check failed: digest mismatch, evidence marked COMPROMISED"
	case out.Sticky:
		desc = "Digest matches but evidence remains COMPROMISED until cleared"
	}
	metrics.VerifyOutcome(ctx, string(result))
	log.Printf("[verifier] evidence=%s result=%s status=%s sticky=%t", e.ID, result, status, out.Sticky)

	receipt := v.ledger.Record(ctx, audit.Draft{
		CaseID:      e.CaseID,
		EvidenceID:  e.ID,
		Action:      models.ActionVerify,
		Actor:       actor,
		Result:      result,
		Description: desc,
		Detail: models.AuditDetail{
			Hash:         digest,
			PreviousHash: previous,
			FileName:     e.FileName,
			FileType:     string(e.Type),
		},
	})
	return out, receipt, nil
}

// ClearCompromise lifts a COMPROMISED flag. Only administrators may clear,
// a reason is required, and the file must still hash to the recorded digest.
func (v *Verifier) ClearCompromise(ctx context.Context, actor models.Principal, evidenceID, reason string) (Outcome, audit.Receipt, error) {
	if !actor.IsAdmin() {
		return Outcome{}, audit.Receipt{}, apperr.Forbidden("only administrators may clear a compromise")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Outcome{}, audit.Receipt{}, apperr.Validation("reason is required")
	}

	unlock, err := v.locker.Lock(ctx, evidenceID)
	if err != nil {
		return Outcome{}, audit.Receipt{}, apperr.Persistence(err, "acquire verification lock")
	}
	defer unlock()

	e, err := v.load(ctx, evidenceID)
	if err != nil {
		return Outcome{}, audit.Receipt{}, err
	}
	if e.IntegrityStatus != models.IntegrityCompromised {
		return Outcome{}, audit.Receipt{}, apperr.Validation("evidence %s is not compromised", e.ID)
	}

	digest, err := v.digest(ctx, e)
	if err != nil {
		return Outcome{}, audit.Receipt{}, err
	}
	if digest != e.FileHash {
		receipt := v.ledger.Record(ctx, audit.Draft{
			CaseID:      e.CaseID,
			EvidenceID:  e.ID,
			Action:      models.ActionIntegrityClear,
			Actor:       actor,
			Result:      models.ResultRejected,
			Description: "Compromise not cleared: file changed since last verification",
			Detail:      models.AuditDetail{Hash: digest, PreviousHash: e.FileHash, FileName: e.FileName},
		})
		return Outcome{}, receipt, apperr.Validation("file digest differs from the recorded digest; verify again before clearing")
	}

	now := v.NowFunc().UTC()
	e.IntegrityStatus = models.IntegrityVerified
	e.LastVerifiedAt = &now
	if err := v.evidence.UpdateEvidence(ctx, e); err != nil {
		return Outcome{}, audit.Receipt{}, apperr.Persistence(err, "update evidence integrity")
	}
	log.Printf("[verifier] evidence=%s compromise cleared by=%s", e.ID, actor.ID)

	receipt := v.ledger.Record(ctx, audit.Draft{
		CaseID:      e.CaseID,
		EvidenceID:  e.ID,
		Action:      models.ActionIntegrityClear,
		Actor:       actor,
		Description: fmt.Sprintf("Compromise cleared by %s: %s", actor.DisplayName(), reason),
		Detail:      models.AuditDetail{Hash: digest, FileName: e.FileName},
	})
	return Outcome{
		EvidenceID:   e.ID,
		Matched:      true,
		Status:       models.IntegrityVerified,
		PreviousHash: digest,
		CurrentHash:  digest,
		VerifiedAt:   now,
	}, receipt, nil
}

func (v *Verifier) load(ctx context.Context, id string) (models.Evidence, error) {
	e, err := v.evidence.GetEvidence(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Evidence{}, apperr.NotFound("evidence %s not found", id)
		}
		return models.Evidence{}, apperr.Persistence(err, "load evidence")
	}
	return e, nil
}

// digest hashes the current file content. Any failure to open or read the
// file is a FILE_UNAVAILABLE error.
func (v *Verifier) digest(ctx context.Context, e models.Evidence) (string, error) {
	rc, err := v.files.Open(ctx, e.FileRef)
	if err != nil {
		return "", apperr.FileUnavailable(err, "evidence file for %s is unavailable", e.ID)
	}
	defer rc.Close()

	sum, err := hasher.DigestFile(rc)
	if err != nil {
		return "", apperr.FileUnavailable(err, "evidence file for %s could not be read", e.ID)
	}
	return sum, nil
}
