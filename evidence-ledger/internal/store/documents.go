package store

import (
	"context"
	"fmt"

	"github.com/Kaaval/Main/evidence-ledger/internal/models"
)

func (s *SQLStore) CreateDocument(ctx context.Context, d models.LegalDocument) error {
	linked, err := encodeList(d.LinkedEvidenceIDs)
	if err != nil {
		return fmt.Errorf("encode linked ids: %w", err)
	}
	query := s.rebind(`
		INSERT INTO legal_documents (id, case_id, type, title, content, issued_by, linked_ids, created_at)
		VALUES (?,?,?,?,?,?,?,?)
	`)
	if _, err := s.db.ExecContext(ctx, query,
		d.ID,
		d.CaseID,
		string(d.Type),
		d.Title,
		d.Content,
		d.IssuedBy,
		linked,
		models.FormatTime(d.CreatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *SQLStore) ListDocuments(ctx context.Context, caseID string) ([]models.LegalDocument, error) {
	query := s.rebind(`
		SELECT id, case_id, type, title, content, issued_by, linked_ids, created_at
		FROM legal_documents
		WHERE case_id = ?
		ORDER BY created_at ASC
	`)
	rows, err := s.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []models.LegalDocument{}
	for rows.Next() {
		var (
			d                  models.LegalDocument
			typ, linked, creat string
		)
		if err := rows.Scan(&d.ID, &d.CaseID, &typ, &d.Title, &d.Content, &d.IssuedBy, &linked, &creat); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Type = models.DocumentType(typ)
		if d.LinkedEvidenceIDs, err = decodeStrings(linked); err != nil {
			return nil, fmt.Errorf("decode linked ids: %w", err)
		}
		if d.CreatedAt, err = models.ParseTime(creat); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("documents rows err: %w", err)
	}
	return docs, nil
}
