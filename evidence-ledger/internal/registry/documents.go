package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
)

type DocumentInput struct {
	CaseID            string              `json:"caseId" validate:"required"`
	Type              models.DocumentType `json:"type" validate:"required,oneof=FIR WARRANT COURT_ORDER CHARGE_SHEET"`
	Title             string              `json:"title" validate:"required,max=200"`
	Content           string              `json:"content" validate:"max=100000"`
	LinkedEvidenceIDs []string            `json:"linkedEvidenceIds" validate:"max=100,dive,required"`
}

// CreateDocument files a legal document against a case. Linked evidence
// must exist and be visible to the issuer.
func (r *Registry) CreateDocument(ctx context.Context, actor models.Principal, in DocumentInput) (models.LegalDocument, audit.Receipt, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := check(in); err != nil {
		return models.LegalDocument{}, audit.Receipt{}, err
	}
	c, err := r.GetCase(ctx, in.CaseID)
	if err != nil {
		return models.LegalDocument{}, audit.Receipt{}, err
	}

	linked := make([]string, 0, len(in.LinkedEvidenceIDs))
	seen := map[string]bool{}
	for _, id := range in.LinkedEvidenceIDs {
		if seen[id] {
			continue
		}
		if _, err := r.Visible(ctx, actor, id); err != nil {
			return models.LegalDocument{}, audit.Receipt{}, err
		}
		seen[id] = true
		linked = append(linked, id)
	}

	d := models.LegalDocument{
		ID:                r.NewID("DOC"),
		CaseID:            c.ID,
		Type:              in.Type,
		Title:             in.Title,
		Content:           in.Content,
		IssuedBy:          actor.ID,
		LinkedEvidenceIDs: linked,
		CreatedAt:         r.NowFunc().UTC(),
	}
	if err := r.store.CreateDocument(ctx, d); err != nil {
		return models.LegalDocument{}, audit.Receipt{}, apperr.Persistence(err, "create document")
	}

	receipt := r.ledger.Record(ctx, audit.Draft{
		CaseID:      c.ID,
		Action:      models.ActionCreateDoc,
		Actor:       actor,
		Description: fmt.Sprintf("Legal document created: %s %s", d.Type, d.Title),
		Detail:      models.AuditDetail{Title: d.Title, Officer: actor.ID},
	})
	return d, receipt, nil
}

func (r *Registry) ListDocuments(ctx context.Context, caseID string) ([]models.LegalDocument, error) {
	if _, err := r.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	docs, err := r.store.ListDocuments(ctx, caseID)
	if err != nil {
		return nil, apperr.Persistence(err, "list documents")
	}
	return docs, nil
}
