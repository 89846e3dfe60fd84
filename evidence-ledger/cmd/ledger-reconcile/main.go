// ledger-reconcile migrates the schema, backfills legacy ledger rows and
// re-verifies every entry. It prints a JSON report and exits 1 when any
// entry fails verification.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/config"
	"github.com/Kaaval/Main/evidence-ledger/internal/store"
)

type report struct {
	Migrations []string              `json:"migrations"`
	Reconcile  audit.ReconcileReport `json:"reconcile"`
	Verify     *audit.VerifyReport   `json:"verify,omitempty"`
}

func main() {
	driver := flag.String("driver", "", "database driver (postgres or sqlite); defaults to EVIDENCE_LEDGER_DATABASE_DRIVER")
	dsn := flag.String("dsn", "", "database URL; defaults to EVIDENCE_LEDGER_DATABASE_URL")
	skipVerify := flag.Bool("skip-verify", false, "backfill only, do not re-verify entries")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline")
	flag.Parse()

	cfg := config.Defaults()
	if v := os.Getenv("EVIDENCE_LEDGER_DATABASE_DRIVER"); v != "" {
		cfg.DatabaseDriver = v
	}
	cfg.DatabaseURL = firstNonEmpty(*dsn, os.Getenv("EVIDENCE_LEDGER_DATABASE_URL"), os.Getenv("DATABASE_URL"))
	if *driver != "" {
		cfg.DatabaseDriver = *driver
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintf(os.Stderr, "Usage: ledger-reconcile -dsn <database url> [-driver postgres|sqlite]\n")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := run(ctx, cfg, !*skipVerify)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
	if out.Verify != nil && len(out.Verify.Failed) > 0 {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, verify bool) (report, error) {
	db, dialect, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return report{}, err
	}
	defer db.Close()
	st := store.NewSQLStore(db, dialect)

	var out report
	if out.Migrations, err = st.Migrate(ctx); err != nil {
		return report{}, fmt.Errorf("migrate: %w", err)
	}
	if out.Migrations == nil {
		out.Migrations = []string{}
	}

	ledger := audit.New(st, audit.Config{MaxAttempts: 1})
	if out.Reconcile, err = ledger.Reconcile(ctx); err != nil {
		return report{}, fmt.Errorf("reconcile: %w", err)
	}
	if verify {
		vr, err := ledger.VerifyAll(ctx)
		if err != nil {
			return report{}, fmt.Errorf("verify: %w", err)
		}
		out.Verify = &vr
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
