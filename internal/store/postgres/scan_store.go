package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rentradar/rentradar/internal/store"
)

// ScanStore persists scan runs in the scan_runs table.
type ScanStore struct {
	db DB
}

// NewScanStore creates a scan store on top of an existing pool.
func NewScanStore(db DB) (*ScanStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &ScanStore{db: db}, nil
}

// Create inserts a new running scan row and fills in the generated ID.
func (s *ScanStore) Create(ctx context.Context, run *store.ScanRun) error {
	if run == nil {
		return fmt.Errorf("run is required")
	}
	err := s.db.QueryRow(ctx, `
INSERT INTO scan_runs (sources, cities, status, started_at)
VALUES ($1, $2, $3, $4)
RETURNING id`,
		run.Sources, run.Cities, run.Status, run.StartedAt,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("insert scan run: %w", err)
	}
	return nil
}

// Finish records the outcome of a scan run.
func (s *ScanStore) Finish(ctx context.Context, run *store.ScanRun) error {
	if run == nil {
		return fmt.Errorf("run is required")
	}
	tag, err := s.db.Exec(ctx, `
UPDATE scan_runs SET
	status = $1,
	found_count = $2,
	new_count = $3,
	updated_count = $4,
	failed_count = $5,
	finished_at = $6,
	error_message = $7
WHERE id = $8`,
		run.Status, run.Found, run.New, run.Updated, run.Failed,
		run.FinishedAt, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("finish scan run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const selectScanColumns = `
	id, sources, cities, status, found_count, new_count, updated_count,
	failed_count, started_at, finished_at, error_message`

// Get fetches one scan run by ID.
func (s *ScanStore) Get(ctx context.Context, id int64) (*store.ScanRun, error) {
	row := s.db.QueryRow(ctx, "SELECT"+selectScanColumns+" FROM scan_runs WHERE id = $1", id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scan run: %w", err)
	}
	return run, nil
}

// List returns the most recent scan runs.
func (s *ScanStore) List(ctx context.Context, limit int) ([]*store.ScanRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		"SELECT"+selectScanColumns+" FROM scan_runs ORDER BY id DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("list scan runs: %w", err)
	}
	defer rows.Close()

	var out []*store.ScanRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scan runs: %w", err)
	}
	return out, nil
}

func scanRun(row pgx.Row) (*store.ScanRun, error) {
	var run store.ScanRun
	err := row.Scan(
		&run.ID, &run.Sources, &run.Cities, &run.Status, &run.Found,
		&run.New, &run.Updated, &run.Failed, &run.StartedAt,
		&run.FinishedAt, &run.Error,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
