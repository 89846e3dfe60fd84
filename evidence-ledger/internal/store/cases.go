package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Kaaval/Main/evidence-ledger/internal/models"
)

const caseColumns = `id, title, description, status, frozen_from, custodian, custodian_role,
	assigned_forensics, created_by, created_at, updated_at`

func (s *SQLStore) CreateCase(ctx context.Context, c models.Case) error {
	query := s.rebind(`
		INSERT INTO cases (` + caseColumns + `)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
	`)
	if _, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.Title,
		c.Description,
		string(c.Status),
		string(c.FrozenFrom),
		c.Custodian,
		c.CustodianRole,
		c.AssignedToForensics,
		c.CreatedBy,
		models.FormatTime(c.CreatedAt),
		models.FormatTime(c.UpdatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (s *SQLStore) GetCase(ctx context.Context, id string) (models.Case, error) {
	query := s.rebind(`SELECT ` + caseColumns + ` FROM cases WHERE id = ?`)
	c, err := scanCase(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Case{}, ErrNotFound
		}
		return models.Case{}, fmt.Errorf("select case: %w", err)
	}
	return c, nil
}

func (s *SQLStore) UpdateCase(ctx context.Context, c models.Case) error {
	query := s.rebind(`
		UPDATE cases SET
			title = ?, description = ?, status = ?, frozen_from = ?, custodian = ?,
			custodian_role = ?, assigned_forensics = ?, updated_at = ?
		WHERE id = ?
	`)
	res, err := s.db.ExecContext(ctx, query,
		c.Title,
		c.Description,
		string(c.Status),
		string(c.FrozenFrom),
		c.Custodian,
		c.CustodianRole,
		c.AssignedToForensics,
		models.FormatTime(c.UpdatedAt),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	return requireRow(res)
}

func (s *SQLStore) ListCases(ctx context.Context, filter CaseFilter) ([]models.Case, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Custodian != "" {
		where = append(where, "custodian = ?")
		args = append(args, filter.Custodian)
	}
	query := `SELECT ` + caseColumns + ` FROM cases`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	cases := []models.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cases rows err: %w", err)
	}
	return cases, nil
}

func scanCase(row rowScanner) (models.Case, error) {
	var (
		c                    models.Case
		status, frozenFrom   string
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&c.ID,
		&c.Title,
		&c.Description,
		&status,
		&frozenFrom,
		&c.Custodian,
		&c.CustodianRole,
		&c.AssignedToForensics,
		&c.CreatedBy,
		&createdAt,
		&updatedAt,
	); err != nil {
		return models.Case{}, err
	}
	c.Status = models.CaseStatus(status)
	c.FrozenFrom = models.CaseStatus(frozenFrom)
	var err error
	if c.CreatedAt, err = models.ParseTime(createdAt); err != nil {
		return models.Case{}, fmt.Errorf("parse created_at: %w", err)
	}
	if c.UpdatedAt, err = models.ParseTime(updatedAt); err != nil {
		return models.Case{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return c, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
