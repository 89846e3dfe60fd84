package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/config"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
	"github.com/Kaaval/Main/evidence-ledger/internal/store"
)

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults()
	cfg.DatabaseDriver = config.DriverSQLite
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "ledger.db")

	first, err := run(ctx, cfg, true)
	require.NoError(t, err)
	assert.NotEmpty(t, first.Migrations)
	require.NotNil(t, first.Verify)
	assert.Equal(t, 0, first.Verify.Checked)

	db, dialect, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	require.NoError(t, err)
	ledger := audit.New(store.NewSQLStore(db, dialect), audit.Config{})
	_, err = ledger.Append(ctx, audit.Draft{
		CaseID:      "CASE-1",
		Action:      models.ActionCreateCase,
		Actor:       models.Principal{ID: "officer-1", Role: models.RolePolice},
		Description: "Case created: Warehouse burglary",
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	second, err := run(ctx, cfg, true)
	require.NoError(t, err)
	assert.Empty(t, second.Migrations)
	assert.Equal(t, 0, second.Reconcile.Updated)
	assert.Equal(t, 1, second.Verify.Checked)
	assert.Empty(t, second.Verify.Failed)

	skipped, err := run(ctx, cfg, false)
	require.NoError(t, err)
	assert.Nil(t, skipped.Verify)
}
