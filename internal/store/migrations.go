package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the ledger tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		case_id      TEXT NOT NULL,
		config_path  TEXT NOT NULL,
		snakefile    TEXT NOT NULL,
		command      TEXT NOT NULL DEFAULT '[]',
		run_mode     TEXT NOT NULL,
		dry_run      INTEGER NOT NULL DEFAULT 0,
		state        TEXT NOT NULL DEFAULT 'PENDING',
		exit_code    INTEGER,
		log_dir      TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL,
		completed_at TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_case_id ON runs(case_id)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
