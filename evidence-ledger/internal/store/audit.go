package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Kaaval/Main/evidence-ledger/internal/models"
)

const auditColumns = `id, case_id, evidence_id, action, user_id, user_role, user_org, timestamp, result,
	description, detail_hash, detail_file_name, detail_file_type, detail_file_uri, detail_location,
	detail_title, detail_officer, detail_metadata_hash, detail_previous_hash, metadata_hash`

// InsertAuditEntry writes the entry and its outbox row in one transaction.
func (s *SQLStore) InsertAuditEntry(ctx context.Context, e models.AuditEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := s.rebind(`
		INSERT INTO audit_logs (` + auditColumns + `)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`)
	if _, err := tx.ExecContext(ctx, query,
		e.ID,
		nullString(e.CaseID),
		nullString(e.EvidenceID),
		string(e.Action),
		e.Actor.UserID,
		e.Actor.Role,
		e.Actor.Org,
		models.FormatTime(e.Timestamp),
		string(e.Result),
		nullString(e.Description),
		nullString(e.Detail.Hash),
		nullString(e.Detail.FileName),
		nullString(e.Detail.FileType),
		nullString(e.Detail.FileURI),
		nullString(e.Detail.Location),
		nullString(e.Detail.Title),
		nullString(e.Detail.Officer),
		nullString(e.Detail.MetadataHash),
		nullString(e.Detail.PreviousHash),
		nullString(e.MetadataHash),
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}

	outbox := s.rebind(`INSERT INTO audit_outbox (entry_id, status, attempts, updated_at) VALUES (?, 'pending', 0, ?)`)
	if _, err := tx.ExecContext(ctx, outbox, e.ID, models.FormatTime(e.Timestamp)); err != nil {
		return fmt.Errorf("insert audit outbox: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit entry: %w", err)
	}
	return nil
}

func (s *SQLStore) GetAuditEntry(ctx context.Context, id string) (models.AuditEntry, error) {
	query := s.rebind(`SELECT ` + auditColumns + ` FROM audit_logs WHERE id = ?`)
	e, _, err := scanAuditEntry(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AuditEntry{}, ErrNotFound
		}
		return models.AuditEntry{}, fmt.Errorf("select audit entry: %w", err)
	}
	return e, nil
}

// QueryAuditEntries returns entries matching every set filter, newest first.
// Entries stamped with the same timestamp are ordered by insertion, newest first.
func (s *SQLStore) QueryAuditEntries(ctx context.Context, filter AuditFilter) ([]models.AuditEntry, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.CaseID != "" {
		where = append(where, "case_id = ?")
		args = append(args, filter.CaseID)
	}
	if filter.EvidenceID != "" {
		where = append(where, "evidence_id = ?")
		args = append(args, filter.EvidenceID)
	}
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}

	query := `SELECT ` + auditColumns + ` FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		e, _, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit rows err: %w", err)
	}
	return entries, nil
}

// ListAuditRowsForBackfill returns rows that still carry a legacy details
// blob or lack a metadata hash.
func (s *SQLStore) ListAuditRowsForBackfill(ctx context.Context) ([]BackfillRow, error) {
	query := `SELECT ` + auditColumns + `, details FROM audit_logs
		WHERE details IS NOT NULL OR metadata_hash IS NULL
		ORDER BY seq ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query backfill rows: %w", err)
	}
	defer rows.Close()

	var out []BackfillRow
	for rows.Next() {
		var legacy sql.NullString
		e, hasHash, err := scanAuditEntry(rows, &legacy)
		if err != nil {
			return nil, fmt.Errorf("scan backfill row: %w", err)
		}
		out = append(out, BackfillRow{Entry: e, LegacyDetails: legacy.String, HasHash: hasHash})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("backfill rows err: %w", err)
	}
	return out, nil
}

// ApplyAuditBackfill fills NULL detail columns and a NULL metadata hash, and
// clears the legacy blob. Existing non-null values are never overwritten.
func (s *SQLStore) ApplyAuditBackfill(ctx context.Context, id string, d models.AuditDetail, metadataHash string) (bool, error) {
	query := s.rebind(`
		UPDATE audit_logs SET
			detail_hash = COALESCE(detail_hash, ?),
			detail_file_name = COALESCE(detail_file_name, ?),
			detail_file_type = COALESCE(detail_file_type, ?),
			detail_file_uri = COALESCE(detail_file_uri, ?),
			detail_location = COALESCE(detail_location, ?),
			detail_title = COALESCE(detail_title, ?),
			detail_officer = COALESCE(detail_officer, ?),
			detail_metadata_hash = COALESCE(detail_metadata_hash, ?),
			detail_previous_hash = COALESCE(detail_previous_hash, ?),
			metadata_hash = COALESCE(metadata_hash, ?),
			details = NULL
		WHERE id = ? AND (details IS NOT NULL OR metadata_hash IS NULL)
	`)
	res, err := s.db.ExecContext(ctx, query,
		nullString(d.Hash),
		nullString(d.FileName),
		nullString(d.FileType),
		nullString(d.FileURI),
		nullString(d.Location),
		nullString(d.Title),
		nullString(d.Officer),
		nullString(d.MetadataHash),
		nullString(d.PreviousHash),
		nullString(metadataHash),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("backfill audit row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// scanAuditEntry scans auditColumns followed by any extra destinations and
// reports whether metadata_hash was non-null.
func scanAuditEntry(row rowScanner, extra ...interface{}) (models.AuditEntry, bool, error) {
	var (
		e                                    models.AuditEntry
		caseID, evidenceID, description      sql.NullString
		action, result, ts                   string
		hash, fileName, fileType, fileURI    sql.NullString
		location, title, officer, detailMeta sql.NullString
		previous, metadataHash               sql.NullString
	)
	dest := []interface{}{
		&e.ID,
		&caseID,
		&evidenceID,
		&action,
		&e.Actor.UserID,
		&e.Actor.Role,
		&e.Actor.Org,
		&ts,
		&result,
		&description,
		&hash,
		&fileName,
		&fileType,
		&fileURI,
		&location,
		&title,
		&officer,
		&detailMeta,
		&previous,
		&metadataHash,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return models.AuditEntry{}, false, err
	}

	e.CaseID = caseID.String
	e.EvidenceID = evidenceID.String
	e.Action = models.AuditAction(action)
	e.Result = models.AuditResult(result)
	e.Description = description.String
	e.Detail = models.AuditDetail{
		Hash:         hash.String,
		FileName:     fileName.String,
		FileType:     fileType.String,
		FileURI:      fileURI.String,
		Location:     location.String,
		Title:        title.String,
		Officer:      officer.String,
		MetadataHash: detailMeta.String,
		PreviousHash: previous.String,
	}
	e.MetadataHash = metadataHash.String

	parsed, err := models.ParseTime(ts)
	if err != nil {
		return models.AuditEntry{}, false, fmt.Errorf("parse timestamp: %w", err)
	}
	e.Timestamp = parsed
	return e, metadataHash.Valid, nil
}

// ClaimPendingOutbox claims up to limit entries awaiting publication and
// marks them in progress. On Postgres concurrent claimers skip each other's
// rows.
func (s *SQLStore) ClaimPendingOutbox(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	lock := ""
	if s.dialect == Postgres {
		lock = " FOR UPDATE SKIP LOCKED"
	}
	claim := s.rebind(`
		SELECT entry_id FROM audit_outbox
		WHERE status IN ('pending', 'failed')
		ORDER BY updated_at ASC
		LIMIT ?` + lock)
	rows, err := tx.QueryContext(ctx, claim, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending outbox: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan outbox id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox rows err: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	mark := s.rebind(`UPDATE audit_outbox SET status = 'in_progress', attempts = attempts + 1, updated_at = ? WHERE entry_id = ?`)
	load := s.rebind(`SELECT ` + auditColumns + ` FROM audit_logs WHERE id = ?`)
	now := models.FormatTime(time.Now())
	entries := make([]models.AuditEntry, 0, len(ids))
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, mark, now, id); err != nil {
			return nil, fmt.Errorf("claim outbox %s: %w", id, err)
		}
		e, _, err := scanAuditEntry(tx.QueryRowContext(ctx, load, id))
		if err != nil {
			return nil, fmt.Errorf("load claimed entry %s: %w", id, err)
		}
		entries = append(entries, e)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return entries, nil
}

// MarkOutboxResult records the outcome of publishing an entry.
func (s *SQLStore) MarkOutboxResult(ctx context.Context, entryID string, archiveKey string, ok bool, lastErr string) error {
	var (
		query string
		args  []interface{}
		now   = models.FormatTime(time.Now())
	)
	if ok {
		query = `UPDATE audit_outbox SET status = 'done', archive_key = ?, last_error = NULL, updated_at = ? WHERE entry_id = ?`
		args = []interface{}{nullString(archiveKey), now, entryID}
	} else {
		query = `UPDATE audit_outbox SET status = 'failed', last_error = ?, updated_at = ? WHERE entry_id = ?`
		args = []interface{}{nullString(lastErr), now, entryID}
	}
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("mark outbox result: %w", err)
	}
	return requireRow(res)
}
