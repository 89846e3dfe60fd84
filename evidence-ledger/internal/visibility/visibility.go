// Package visibility decides which principals may see an evidence item and
// manages the per-item visibility rule.
package visibility

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
	"github.com/Kaaval/Main/evidence-ledger/internal/store"
	"github.com/Kaaval/Main/evidence-ledger/internal/verifier"
)

// CanView reports whether p may see e. Administrators always may. An
// unrestricted item is visible to everyone; a restricted one to principals
// matching any allow-list.
func CanView(p models.Principal, e models.Evidence) bool {
	if p.IsAdmin() {
		return true
	}
	rule := e.Visibility
	if !rule.IsRestricted {
		return true
	}
	for _, r := range rule.AllowedRoles {
		if r == p.Role {
			return true
		}
	}
	if p.Designation != "" {
		for _, d := range rule.AllowedDesignations {
			if d == p.Designation {
				return true
			}
		}
	}
	if p.ID != "" {
		for _, id := range rule.AllowedUserIDs {
			if id == p.ID {
				return true
			}
		}
	}
	return false
}

// Filter returns the items of list that p may see, preserving order.
func Filter(p models.Principal, list []models.Evidence) []models.Evidence {
	out := make([]models.Evidence, 0, len(list))
	for _, e := range list {
		if CanView(p, e) {
			out = append(out, e)
		}
	}
	return out
}

// Normalize trims allow-list entries and drops empties and duplicates.
func Normalize(rule models.Visibility) models.Visibility {
	roles := make([]models.Role, 0, len(rule.AllowedRoles))
	seen := map[models.Role]bool{}
	for _, r := range rule.AllowedRoles {
		r = models.Role(strings.ToUpper(strings.TrimSpace(string(r))))
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		roles = append(roles, r)
	}
	return models.Visibility{
		IsRestricted:        rule.IsRestricted,
		AllowedRoles:        roles,
		AllowedDesignations: dedupe(rule.AllowedDesignations),
		AllowedUserIDs:      dedupe(rule.AllowedUserIDs),
	}
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Service replaces visibility rules and records the change.
type Service struct {
	evidence store.EvidenceStore
	ledger   *audit.Ledger
	locker   verifier.Locker
}

func NewService(evidence store.EvidenceStore, ledger *audit.Ledger, locker verifier.Locker) *Service {
	if locker == nil {
		locker = verifier.NewLocalLocker()
	}
	return &Service{evidence: evidence, ledger: ledger, locker: locker}
}

// UpdateVisibility replaces the rule of an item wholesale.
func (s *Service) UpdateVisibility(ctx context.Context, actor models.Principal, evidenceID string, rule models.Visibility) (models.Evidence, audit.Receipt, error) {
	rule = Normalize(rule)
	for _, r := range rule.AllowedRoles {
		if !r.Valid() {
			return models.Evidence{}, audit.Receipt{}, apperr.Validation("unknown role %q in allowedRoles", r)
		}
	}

	unlock, err := s.locker.Lock(ctx, evidenceID)
	if err != nil {
		return models.Evidence{}, audit.Receipt{}, apperr.Persistence(err, "acquire lock")
	}
	defer unlock()

	e, err := s.evidence.GetEvidence(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Evidence{}, audit.Receipt{}, apperr.NotFound("evidence %s not found", evidenceID)
		}
		return models.Evidence{}, audit.Receipt{}, apperr.Persistence(err, "load evidence")
	}
	e.Visibility = rule
	if err := s.evidence.UpdateEvidence(ctx, e); err != nil {
		return models.Evidence{}, audit.Receipt{}, apperr.Persistence(err, "update evidence visibility")
	}

	state := "Public"
	if rule.IsRestricted {
		state = "Restricted"
	}
	log.Printf("[visibility] evidence=%s restricted=%t by=%s", e.ID, rule.IsRestricted, actor.ID)
	receipt := s.ledger.Record(ctx, audit.Draft{
		CaseID:      e.CaseID,
		EvidenceID:  e.ID,
		Action:      models.ActionVisibility,
		Actor:       actor,
		Description: "Access controls updated (" + state + ")",
		Detail:      models.AuditDetail{FileName: e.FileName},
	})
	return e, receipt, nil
}
