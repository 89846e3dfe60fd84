package custody

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
)

func caseKey(id string) string { return "case:" + id }

// TransferCustody hands a case to a new custodian. The custodian is a free
// text identifier and is not checked against any directory.
func (m *Machine) TransferCustody(ctx context.Context, actor models.Principal, caseID, newCustodian, newRole, notes string) (models.Case, audit.Receipt, error) {
	newCustodian = strings.TrimSpace(newCustodian)
	newRole = strings.TrimSpace(newRole)
	if newCustodian == "" {
		return models.Case{}, audit.Receipt{}, apperr.Validation("new custodian is required")
	}

	unlock, err := m.lock(ctx, caseKey(caseID))
	if err != nil {
		return models.Case{}, audit.Receipt{}, err
	}
	defer unlock()

	c, err := m.loadCase(ctx, caseID)
	if err != nil {
		return models.Case{}, audit.Receipt{}, err
	}
	previous := c.Custodian
	c.Custodian = newCustodian
	c.CustodianRole = newRole
	if err := m.saveCase(ctx, &c); err != nil {
		return models.Case{}, audit.Receipt{}, err
	}
	log.Printf("[custody] case=%s custody %s -> %s", c.ID, previous, newCustodian)

	desc := fmt.Sprintf("Case custody transferred to %s", newCustodian)
	if newRole != "" {
		desc += fmt.Sprintf(" (%s)", newRole)
	}
	desc += "."
	if n := strings.TrimSpace(notes); n != "" {
		desc += " " + n
	}
	receipt := m.ledger.Record(ctx, audit.Draft{
		CaseID:      c.ID,
		Action:      models.ActionTransferCustody,
		Actor:       actor,
		Description: desc,
		Detail:      models.AuditDetail{Officer: newCustodian},
	})
	return c, receipt, nil
}

// RequestEvidenceTransfer starts a two-step transfer of one evidence item.
// The target is a principal id or an org; a new request replaces a pending
// one.
func (m *Machine) RequestEvidenceTransfer(ctx context.Context, actor models.Principal, evidenceID, target string) (models.Evidence, audit.Receipt, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return models.Evidence{}, audit.Receipt{}, apperr.Validation("transfer target is required")
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
	if target == e.Custodian {
		return models.Evidence{}, audit.Receipt{}, apperr.Validation("%s already holds evidence %s", target, e.ID)
	}
	e.PendingTransferTo = target
	if err := m.saveEvidence(ctx, e); err != nil {
		return models.Evidence{}, audit.Receipt{}, err
	}

	receipt := m.ledger.Record(ctx, audit.Draft{
		CaseID:      e.CaseID,
		EvidenceID:  e.ID,
		Action:      models.ActionTransferRequest,
		Actor:       actor,
		Description: fmt.Sprintf("Transfer of %s requested from %s to %s", e.FileName, e.Custodian, target),
		Detail:      models.AuditDetail{FileName: e.FileName, Officer: target},
	})
	return e, receipt, nil
}

// AcceptEvidenceTransfer completes a pending transfer. Only the requested
// target, matched by principal id or org, may accept.
func (m *Machine) AcceptEvidenceTransfer(ctx context.Context, actor models.Principal, evidenceID string) (models.Evidence, audit.Receipt, error) {
	unlock, err := m.lock(ctx, evidenceID)
	if err != nil {
		return models.Evidence{}, audit.Receipt{}, err
	}
	defer unlock()

	e, err := m.loadEvidence(ctx, evidenceID)
	if err != nil {
		return models.Evidence{}, audit.Receipt{}, err
	}
	target := e.PendingTransferTo
	if target == "" {
		return models.Evidence{}, audit.Receipt{}, apperr.Validation("no transfer pending for evidence %s", e.ID)
	}
	if actor.ID != target && (actor.Org == "" || actor.Org != target) {
		return models.Evidence{}, audit.Receipt{}, apperr.Forbidden("transfer of evidence %s is pending for %s", e.ID, target)
	}

	previous := e.Custodian
	e.Custodian = target
	e.PendingTransferTo = ""
	if err := m.saveEvidence(ctx, e); err != nil {
		return models.Evidence{}, audit.Receipt{}, err
	}
	log.Printf("[custody] evidence=%s custody %s -> %s", e.ID, previous, target)

	receipt := m.ledger.Record(ctx, audit.Draft{
		CaseID:      e.CaseID,
		EvidenceID:  e.ID,
		Action:      models.ActionTransferAccept,
		Actor:       actor,
		Description: fmt.Sprintf("Custody of %s accepted by %s", e.FileName, target),
		Detail:      models.AuditDetail{FileName: e.FileName, Officer: target},
	})
	return e, receipt, nil
}
