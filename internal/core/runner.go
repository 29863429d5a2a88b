package core

// runner.go drives one queued import job to a terminal outcome.
//
// A job is retried as a whole: the file is re-read from the start and the
// create-if-absent / ignore-conflict writes make already-committed batches
// no-ops. The source is deleted once, after the last attempt, whatever the
// outcome. A cancelled context is not an outcome: the source is kept so a
// redelivered job can run it.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/JonMunkholm/salesimport/internal/logging"
	"github.com/JonMunkholm/salesimport/internal/storage"
)

// DefaultMaxAttempts is the default number of whole-run attempts per job.
const DefaultMaxAttempts = 3

// DefaultRetryBackoff is the delay before the second attempt. It doubles
// for each further attempt.
const DefaultRetryBackoff = 2 * time.Second

// Job is one queued import of a stored source file.
type Job struct {
	ID         string    `json:"job_id"`
	Platform   string    `json:"platform"`
	Source     string    `json:"source"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// SourceStore opens and releases uploaded files. Delete must tolerate a
// handle that is already gone.
type SourceStore interface {
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
	Delete(ctx context.Context, handle string) error
}

// RunStatus is the recorded state of a job.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunAbandoned RunStatus = "abandoned"
)

// RunRecord is the history entry for one job.
type RunRecord struct {
	JobID      string
	Platform   string
	Source     string
	Status     RunStatus
	Attempts   int
	Summary    *RunSummary
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunHistory records job progress. Failures to record are logged and
// never fail the job.
type RunHistory interface {
	Start(ctx context.Context, rec RunRecord) error
	Finish(ctx context.Context, rec RunRecord) error
}

// JobOutcome is what Process reports for a finished job.
type JobOutcome struct {
	Job      Job
	Status   RunStatus
	Attempts int
	Summary  *RunSummary
	Err      error
}

// JobObserver is told about every job that reached a terminal outcome.
type JobObserver interface {
	JobFinished(out JobOutcome)
}

// JobRunner executes jobs with whole-run retry.
type JobRunner struct {
	importer    *Importer
	sources     SourceStore
	history     RunHistory
	jobs        JobObserver
	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// RunnerOption configures a JobRunner.
type RunnerOption func(*JobRunner)

// WithMaxAttempts bounds attempts per job. Values below one mean one.
func WithMaxAttempts(n int) RunnerOption {
	return func(r *JobRunner) {
		if n < 1 {
			n = 1
		}
		r.maxAttempts = n
	}
}

// WithRetryBackoff sets the delay before the second attempt.
func WithRetryBackoff(d time.Duration) RunnerOption {
	return func(r *JobRunner) { r.backoff = d }
}

// WithAttemptTimeout bounds each attempt. Zero means no bound.
func WithAttemptTimeout(d time.Duration) RunnerOption {
	return func(r *JobRunner) { r.timeout = d }
}

// WithJobObserver registers o for finished jobs.
func WithJobObserver(o JobObserver) RunnerOption {
	return func(r *JobRunner) { r.jobs = o }
}

// WithRunHistory records each job's progress in h.
func WithRunHistory(h RunHistory) RunnerOption {
	return func(r *JobRunner) { r.history = h }
}

// NewJobRunner returns a runner that imports through importer and releases
// sources through sources.
func NewJobRunner(importer *Importer, sources SourceStore, opts ...RunnerOption) *JobRunner {
	r := &JobRunner{
		importer:    importer,
		sources:     sources,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultRetryBackoff,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process runs job until it succeeds, fails with a non-retryable error, or
// runs out of attempts. The returned error is non-nil only when ctx ended
// before a terminal outcome; in that case the job should be redelivered.
// Import failures are reported in the outcome, not as an error.
func (r *JobRunner) Process(ctx context.Context, job Job) (JobOutcome, error) {
	ctx = logging.ContextWithJobID(ctx, job.ID)
	log := logging.WithRun(ctx, job.Platform, job.Source)

	rec := RunRecord{
		JobID:     job.ID,
		Platform:  job.Platform,
		Source:    job.Source,
		Status:    RunRunning,
		StartedAt: time.Now(),
	}
	r.recordStart(ctx, rec)

	out := JobOutcome{Job: job}
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		out.Attempts = attempt
		summary, err := r.attempt(ctx, job)
		out.Summary, out.Err = summary, err

		if err == nil {
			out.Status = RunSucceeded
			break
		}
		if ctx.Err() != nil {
			log.Warn("import interrupted", slog.Int("attempt", attempt))
			return out, ctx.Err()
		}
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn("source not found, job already completed")
			out.Status = RunAbandoned
			r.recordFinish(ctx, rec, out)
			return out, nil
		}
		if !IsRetryable(err) || attempt == r.maxAttempts {
			out.Status = RunFailed
			log.Error("import failed",
				slog.Int("attempt", attempt),
				slog.Bool("retryable", IsRetryable(err)),
				slog.String("error", err.Error()),
			)
			break
		}

		wait := r.backoff << (attempt - 1)
		log.Warn("import attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
		if err := r.sleep(ctx, wait); err != nil {
			return out, err
		}
	}

	if err := r.sources.Delete(ctx, job.Source); err != nil {
		log.Warn("failed to delete source", slog.String("error", err.Error()))
	}
	r.recordFinish(ctx, rec, out)
	return out, nil
}

func (r *JobRunner) attempt(ctx context.Context, job Job) (*RunSummary, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	src, err := r.sources.Open(ctx, job.Source)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	return r.importer.Run(ctx, job.Platform, src)
}

func (r *JobRunner) recordStart(ctx context.Context, rec RunRecord) {
	if r.history == nil {
		return
	}
	if err := r.history.Start(ctx, rec); err != nil {
		logging.FromContext(ctx).Warn("failed to record run start", slog.String("error", err.Error()))
	}
}

func (r *JobRunner) recordFinish(ctx context.Context, rec RunRecord, out JobOutcome) {
	if r.jobs != nil {
		r.jobs.JobFinished(out)
	}
	if r.history == nil {
		return
	}
	rec.Status = out.Status
	rec.Attempts = out.Attempts
	rec.Summary = out.Summary
	rec.FinishedAt = time.Now()
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	if err := r.history.Finish(ctx, rec); err != nil {
		logging.FromContext(ctx).Warn("failed to record run finish", slog.String("error", err.Error()))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
