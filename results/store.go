// Package results persists experiment runs in a SQLite database.
package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	_ "modernc.org/sqlite"

	"github.com/sarchlab/bpsim/experiment"
	"github.com/sarchlab/bpsim/metrics"
	"github.com/sarchlab/bpsim/predictor"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	label          TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	predictor_json TEXT NOT NULL,
	metrics_json   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_results (
	run_id      TEXT NOT NULL,
	position    INTEGER NOT NULL,
	predictor   TEXT NOT NULL,
	workload    TEXT NOT NULL,
	accuracy    REAL NOT NULL,
	mpki        REAL NOT NULL,
	cpi         REAL NOT NULL,
	result_json TEXT NOT NULL,
	PRIMARY KEY (run_id, position),
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS runs_created_at ON runs(created_at);
`

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one stored invocation of the experiment harness.
type Run struct {
	ID        string              `json:"id"`
	Label     string              `json:"label,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	Predictor predictor.Config    `json:"predictor"`
	Metrics   metrics.Config      `json:"metrics"`
	Results   []experiment.Result `json:"results,omitempty"`
}

// Store manages experiment runs in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results db: %w", err)
	}

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate results db: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores a run with its results and returns the assigned ID. A zero
// CreatedAt is replaced by the current time.
func (s *Store) SaveRun(ctx context.Context, run Run) (string, error) {
	run.ID = xid.New().String()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	predictorJSON, err := json.Marshal(run.Predictor)
	if err != nil {
		return "", fmt.Errorf("failed to marshal predictor config: %w", err)
	}
	metricsJSON, err := json.Marshal(run.Metrics)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metrics config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, label, created_at, predictor_json, metrics_json)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Label, run.CreatedAt.UTC().Format(timeLayout),
		string(predictorJSON), string(metricsJSON),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for i, r := range run.Results {
		resultJSON, err := json.Marshal(r)
		if err != nil {
			return "", fmt.Errorf("failed to marshal result: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_results
			 (run_id, position, predictor, workload, accuracy, mpki, cpi, result_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, r.Predictor, r.Workload, r.Accuracy, r.MPKI, r.CPI,
			string(resultJSON),
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}

	return run.ID, nil
}

// GetRun retrieves a run and its results in their original order.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, created_at, predictor_json, metrics_json
		 FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT result_json FROM run_results WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return Run{}, fmt.Errorf("failed to query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var resultJSON string
		if err := rows.Scan(&resultJSON); err != nil {
			return Run{}, fmt.Errorf("failed to scan result: %w", err)
		}

		var r experiment.Result
		if err := json.Unmarshal([]byte(resultJSON), &r); err != nil {
			return Run{}, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		run.Results = append(run.Results, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, fmt.Errorf("failed to read results: %w", err)
	}

	return run, nil
}

// ListRuns returns the most recent runs, newest first, without their
// results. A limit <= 0 returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, created_at, predictor_json, metrics_json
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}

	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run           Run
		createdAt     string
		predictorJSON string
		metricsJSON   string
	)

	err := row.Scan(&run.ID, &run.Label, &createdAt, &predictorJSON, &metricsJSON)
	if err != nil {
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}

	run.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return Run{}, fmt.Errorf("failed to parse run time: %w", err)
	}
	if err := json.Unmarshal([]byte(predictorJSON), &run.Predictor); err != nil {
		return Run{}, fmt.Errorf("failed to unmarshal predictor config: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &run.Metrics); err != nil {
		return Run{}, fmt.Errorf("failed to unmarshal metrics config: %w", err)
	}

	return run, nil
}
