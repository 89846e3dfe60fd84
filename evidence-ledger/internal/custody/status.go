package custody

import (
	"context"
	"fmt"
	"log"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
)

// statusOrder is the forward path of a case. FROZEN sits outside it.
var statusOrder = map[models.CaseStatus]int{
	models.CaseOpen:               0,
	models.CaseUnderInvestigation: 1,
	models.CaseSubmittedToCourt:   2,
	models.CaseClosed:             3,
}

// UpdateCaseStatus advances a case along OPEN, UNDER_INVESTIGATION,
// SUBMITTED_TO_COURT, CLOSED. Steps may be skipped but never reversed.
func (m *Machine) UpdateCaseStatus(ctx context.Context, actor models.Principal, caseID string, next models.CaseStatus) (models.Case, audit.Receipt, error) {
	nextRank, ok := statusOrder[next]
	if !ok {
		if next == models.CaseFrozen {
			return models.Case{}, audit.Receipt{}, apperr.Validation("use freeze to freeze a case")
		}
		return models.Case{}, audit.Receipt{}, apperr.Validation("unknown case status %q", next)
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
	if c.Status == models.CaseFrozen {
		return models.Case{}, audit.Receipt{}, apperr.Validation("case %s is frozen", c.ID)
	}
	if nextRank <= statusOrder[c.Status] {
		return models.Case{}, audit.Receipt{}, apperr.Validation("case %s cannot move from %s to %s", c.ID, c.Status, next)
	}

	previous := c.Status
	c.Status = next
	if err := m.saveCase(ctx, &c); err != nil {
		return models.Case{}, audit.Receipt{}, err
	}
	log.Printf("[custody] case=%s status %s -> %s", c.ID, previous, next)

	receipt := m.ledger.Record(ctx, audit.Draft{
		CaseID:      c.ID,
		Action:      models.ActionCaseStatus,
		Actor:       actor,
		Description: fmt.Sprintf("Case status changed from %s to %s", previous, next),
		Detail:      models.AuditDetail{Title: c.Title},
	})
	return c, receipt, nil
}

// FreezeCase suspends a case in any state and remembers where it was.
func (m *Machine) FreezeCase(ctx context.Context, actor models.Principal, caseID, reason string) (models.Case, audit.Receipt, error) {
	unlock, err := m.lock(ctx, caseKey(caseID))
	if err != nil {
		return models.Case{}, audit.Receipt{}, err
	}
	defer unlock()

	c, err := m.loadCase(ctx, caseID)
	if err != nil {
		return models.Case{}, audit.Receipt{}, err
	}
	if c.Status == models.CaseFrozen {
		return models.Case{}, audit.Receipt{}, apperr.Validation("case %s is already frozen", c.ID)
	}
	c.FrozenFrom = c.Status
	c.Status = models.CaseFrozen
	if err := m.saveCase(ctx, &c); err != nil {
		return models.Case{}, audit.Receipt{}, err
	}

	desc := fmt.Sprintf("Case frozen (was %s)", c.FrozenFrom)
	if reason != "" {
		desc += ": " + reason
	}
	receipt := m.ledger.Record(ctx, audit.Draft{
		CaseID:      c.ID,
		Action:      models.ActionFreeze,
		Actor:       actor,
		Description: desc,
		Detail:      models.AuditDetail{Title: c.Title},
	})
	return c, receipt, nil
}

// UnfreezeCase restores the status a case had when it was frozen.
func (m *Machine) UnfreezeCase(ctx context.Context, actor models.Principal, caseID string) (models.Case, audit.Receipt, error) {
	unlock, err := m.lock(ctx, caseKey(caseID))
	if err != nil {
		return models.Case{}, audit.Receipt{}, err
	}
	defer unlock()

	c, err := m.loadCase(ctx, caseID)
	if err != nil {
		return models.Case{}, audit.Receipt{}, err
	}
	if c.Status != models.CaseFrozen {
		return models.Case{}, audit.Receipt{}, apperr.Validation("case %s is not frozen", c.ID)
	}
	restored := c.FrozenFrom
	if restored == "" {
		restored = models.CaseOpen
	}
	c.Status = restored
	c.FrozenFrom = ""
	if err := m.saveCase(ctx, &c); err != nil {
		return models.Case{}, audit.Receipt{}, err
	}

	receipt := m.ledger.Record(ctx, audit.Draft{
		CaseID:      c.ID,
		Action:      models.ActionUnfreeze,
		Actor:       actor,
		Description: fmt.Sprintf("Case unfrozen, status restored to %s", restored),
		Detail:      models.AuditDetail{Title: c.Title},
	})
	return c, receipt, nil
}
