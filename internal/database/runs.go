package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/salesimport/internal/core"
)

// ErrRunNotFound is returned when no import run has the requested job id.
var ErrRunNotFound = errors.New("import run not found")

// RunRepo records job progress in import_runs. It implements core.RunHistory.
type RunRepo struct {
	db DBTX
}

// NewRunRepo returns a RunRepo over db.
func NewRunRepo(db DBTX) *RunRepo {
	return &RunRepo{db: db}
}

// A redelivered job restarts its existing row.
const startRun = `
INSERT INTO import_runs (job_id, platform, source, status, started_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (job_id) DO UPDATE
SET status = EXCLUDED.status,
    started_at = EXCLUDED.started_at,
    finished_at = NULL,
    error = NULL
`

// Start implements core.RunHistory.
func (r *RunRepo) Start(ctx context.Context, rec core.RunRecord) error {
	_, err := r.db.Exec(ctx, startRun, rec.JobID, rec.Platform, rec.Source, string(rec.Status), rec.StartedAt)
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

const finishRun = `
UPDATE import_runs
SET status = $2,
    attempts = $3,
    rows_read = $4,
    rows_failed = $5,
    batches = $6,
    totals = $7,
    error = $8,
    finished_at = $9
WHERE job_id = $1
`

// Finish implements core.RunHistory.
func (r *RunRepo) Finish(ctx context.Context, rec core.RunRecord) error {
	var (
		rowsRead, rowsFailed, batches int
		totals                        *core.LoadResult
	)
	if s := rec.Summary; s != nil {
		rowsRead = s.RowsRead
		rowsFailed = s.RowsRead - s.RowsMapped
		batches = s.Batches
		totals = &s.Totals
	}

	errText := pgtype.Text{String: rec.Error, Valid: rec.Error != ""}

	_, err := r.db.Exec(ctx, finishRun,
		rec.JobID, string(rec.Status), rec.Attempts,
		rowsRead, rowsFailed, batches, totals, errText, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}

// Run is a stored import run.
type Run struct {
	JobID      string           `json:"job_id"`
	Platform   string           `json:"platform"`
	Source     string           `json:"source"`
	Status     string           `json:"status"`
	Attempts   int              `json:"attempts"`
	RowsRead   int              `json:"rows_read"`
	RowsFailed int              `json:"rows_failed"`
	Batches    int              `json:"batches"`
	Totals     *core.LoadResult `json:"totals,omitempty"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

const getRun = `
SELECT job_id, platform, source, status, attempts, rows_read, rows_failed,
       batches, totals, coalesce(error, ''), started_at, finished_at
FROM import_runs
WHERE job_id = $1
`

// Get returns the run for jobID or ErrRunNotFound.
func (r *RunRepo) Get(ctx context.Context, jobID string) (*Run, error) {
	var run Run
	err := r.db.QueryRow(ctx, getRun, jobID).Scan(
		&run.JobID, &run.Platform, &run.Source, &run.Status, &run.Attempts,
		&run.RowsRead, &run.RowsFailed, &run.Batches, &run.Totals, &run.Error,
		&run.StartedAt, &run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query import run: %w", err)
	}
	return &run, nil
}
