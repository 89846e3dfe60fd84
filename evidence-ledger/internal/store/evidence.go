package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Kaaval/Main/evidence-ledger/internal/models"
)

const evidenceColumns = `id, case_id, type, file_name, file_ref, uploaded_by, uploaded_at, location,
	file_hash, metadata_hash, custodian, pending_transfer_to, integrity_status, last_verified_at,
	approved_for_legal, visibility, notes, linked_ids, classification, source_hash,
	lifting_video_ref, lifting_video_hash, certificate_ref, certificate_issued_at`

func (s *SQLStore) CreateEvidence(ctx context.Context, e models.Evidence) error {
	visibility, linked, err := encodeEvidenceJSON(e)
	if err != nil {
		return err
	}
	query := s.rebind(`
		INSERT INTO evidence (` + evidenceColumns + `)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`)
	if _, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.CaseID,
		string(e.Type),
		e.FileName,
		e.FileRef,
		e.UploadedBy,
		models.FormatTime(e.UploadedAt),
		e.Location,
		e.FileHash,
		e.MetadataHash,
		e.Custodian,
		e.PendingTransferTo,
		string(e.IntegrityStatus),
		nullTime(e.LastVerifiedAt),
		e.ApprovedForLegal,
		visibility,
		e.Notes,
		linked,
		string(e.Classification),
		e.SourceHash,
		e.LiftingVideoRef,
		e.LiftingVideoHash,
		e.CertificateRef,
		nullTime(e.CertificateIssued),
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

func (s *SQLStore) GetEvidence(ctx context.Context, id string) (models.Evidence, error) {
	query := s.rebind(`SELECT ` + evidenceColumns + ` FROM evidence WHERE id = ?`)
	e, err := scanEvidence(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Evidence{}, ErrNotFound
		}
		return models.Evidence{}, fmt.Errorf("select evidence: %w", err)
	}
	return e, nil
}

// UpdateEvidence rewrites the mutable columns of an evidence row. Creation
// facts (case, uploader, upload time, classification, source digest) are
// never touched, and links only change through LinkEvidence.
func (s *SQLStore) UpdateEvidence(ctx context.Context, e models.Evidence) error {
	visibility, _, err := encodeEvidenceJSON(e)
	if err != nil {
		return err
	}
	query := s.rebind(`
		UPDATE evidence SET
			file_name = ?, file_ref = ?, location = ?, file_hash = ?, metadata_hash = ?,
			custodian = ?, pending_transfer_to = ?, integrity_status = ?, last_verified_at = ?,
			approved_for_legal = ?, visibility = ?, notes = ?,
			lifting_video_ref = ?, lifting_video_hash = ?, certificate_ref = ?, certificate_issued_at = ?
		WHERE id = ?
	`)
	res, err := s.db.ExecContext(ctx, query,
		e.FileName,
		e.FileRef,
		e.Location,
		e.FileHash,
		e.MetadataHash,
		e.Custodian,
		e.PendingTransferTo,
		string(e.IntegrityStatus),
		nullTime(e.LastVerifiedAt),
		e.ApprovedForLegal,
		visibility,
		e.Notes,
		e.LiftingVideoRef,
		e.LiftingVideoHash,
		e.CertificateRef,
		nullTime(e.CertificateIssued),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("update evidence: %w", err)
	}
	return requireRow(res)
}

func (s *SQLStore) ListEvidenceByCase(ctx context.Context, caseID string) ([]models.Evidence, error) {
	query := s.rebind(`SELECT ` + evidenceColumns + ` FROM evidence WHERE case_id = ? ORDER BY uploaded_at ASC, id ASC`)
	rows, err := s.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	defer rows.Close()

	items := []models.Evidence{}
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("evidence rows err: %w", err)
	}
	return items, nil
}

func (s *SQLStore) LinkEvidence(ctx context.Context, a, b string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin link: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := s.rebind(`SELECT ` + evidenceColumns + ` FROM evidence WHERE id = ?` + s.forUpdate())
	load := func(id string) (models.Evidence, error) {
		e, err := scanEvidence(tx.QueryRowContext(ctx, query, id))
		if errors.Is(err, sql.ErrNoRows) {
			return models.Evidence{}, ErrNotFound
		}
		return e, err
	}
	ea, err := load(a)
	if err != nil {
		return err
	}
	eb, err := load(b)
	if err != nil {
		return err
	}
	setLinks := func(e models.Evidence) error {
		_, linked, err := encodeEvidenceJSON(e)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE evidence SET linked_ids = ? WHERE id = ?`), linked, e.ID); err != nil {
			return fmt.Errorf("update links: %w", err)
		}
		return nil
	}
	if !ea.IsLinked(b) {
		ea.LinkedEvidenceIDs = append(ea.LinkedEvidenceIDs, b)
		if err := setLinks(ea); err != nil {
			return err
		}
	}
	if !eb.IsLinked(a) {
		eb.LinkedEvidenceIDs = append(eb.LinkedEvidenceIDs, a)
		if err := setLinks(eb); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit link: %w", err)
	}
	return nil
}

func encodeEvidenceJSON(e models.Evidence) (string, string, error) {
	visibility, err := json.Marshal(e.Visibility)
	if err != nil {
		return "", "", fmt.Errorf("encode visibility: %w", err)
	}
	linked, err := encodeList(e.LinkedEvidenceIDs)
	if err != nil {
		return "", "", fmt.Errorf("encode linked ids: %w", err)
	}
	return string(visibility), linked, nil
}

func scanEvidence(row rowScanner) (models.Evidence, error) {
	var (
		e                             models.Evidence
		typ, status, classification   string
		uploadedAt, visibility, links string
		verifiedAt, certIssued        sql.NullString
	)
	if err := row.Scan(
		&e.ID,
		&e.CaseID,
		&typ,
		&e.FileName,
		&e.FileRef,
		&e.UploadedBy,
		&uploadedAt,
		&e.Location,
		&e.FileHash,
		&e.MetadataHash,
		&e.Custodian,
		&e.PendingTransferTo,
		&status,
		&verifiedAt,
		&e.ApprovedForLegal,
		&visibility,
		&e.Notes,
		&links,
		&classification,
		&e.SourceHash,
		&e.LiftingVideoRef,
		&e.LiftingVideoHash,
		&e.CertificateRef,
		&certIssued,
	); err != nil {
		return models.Evidence{}, err
	}
	e.Type = models.EvidenceType(typ)
	e.IntegrityStatus = models.IntegrityStatus(status)
	e.Classification = models.Classification(classification)

	var err error
	if e.UploadedAt, err = models.ParseTime(uploadedAt); err != nil {
		return models.Evidence{}, fmt.Errorf("parse uploaded_at: %w", err)
	}
	if e.LastVerifiedAt, err = parseNullTime(verifiedAt); err != nil {
		return models.Evidence{}, fmt.Errorf("parse last_verified_at: %w", err)
	}
	if e.CertificateIssued, err = parseNullTime(certIssued); err != nil {
		return models.Evidence{}, fmt.Errorf("parse certificate_issued_at: %w", err)
	}
	if visibility != "" {
		if err := json.Unmarshal([]byte(visibility), &e.Visibility); err != nil {
			return models.Evidence{}, fmt.Errorf("decode visibility: %w", err)
		}
	}
	if e.LinkedEvidenceIDs, err = decodeStrings(links); err != nil {
		return models.Evidence{}, fmt.Errorf("decode linked ids: %w", err)
	}
	return e, nil
}
