package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/balsamic/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// An in-memory database lives per connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// timeLayout is fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, case_id, config_path, snakefile, command, run_mode, dry_run,
	state, exit_code, log_dir, created_at, completed_at`

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	commandJSON, err := json.Marshal(run.Command)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CaseID, run.ConfigPath, run.Snakefile, string(commandJSON),
		string(run.RunMode), run.DryRun, string(run.State), run.ExitCode, run.LogDir,
		run.CreatedAt.UTC().Format(timeLayout), formatTime(run.CompletedAt),
	)
	return err
}

// GetRun returns the run with id, or nil when there is none.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRunsByCase returns the runs of a case, oldest first.
func (s *SQLiteStore) ListRunsByCase(ctx context.Context, caseID string) ([]*model.Run, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "case_id", caseID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE case_id = ? ORDER BY created_at, id`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", run.ID)

	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state=?, exit_code=?, log_dir=?, completed_at=? WHERE id=?`,
		string(run.State), run.ExitCode, run.LogDir, formatTime(run.CompletedAt), run.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*model.Run, error) {
	var run model.Run
	var commandJSON, runMode, state, createdAt string
	var exitCode sql.NullInt64
	var completedAt sql.NullString

	err := sc.Scan(&run.ID, &run.CaseID, &run.ConfigPath, &run.Snakefile, &commandJSON,
		&runMode, &run.DryRun, &state, &exitCode, &run.LogDir, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(commandJSON), &run.Command); err != nil {
		return nil, fmt.Errorf("unmarshal command: %w", err)
	}
	run.RunMode = model.RunMode(runMode)
	run.State = model.RunState(state)
	if exitCode.Valid {
		v := int(exitCode.Int64)
		run.ExitCode = &v
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		run.CompletedAt = &t
	}
	return &run, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(timeLayout)
	return &v
}
