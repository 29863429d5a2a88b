package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/salesimport/internal/core"
	"github.com/JonMunkholm/salesimport/internal/logging"
)

// readRetryDelay is how long the worker waits after a failed read.
const readRetryDelay = time.Second

// ackTimeout bounds acknowledging a finished job.
const ackTimeout = 5 * time.Second

// Processor runs one job to a terminal outcome. A non-nil error means the
// job was interrupted and must be delivered again.
type Processor interface {
	Process(ctx context.Context, job core.Job) (core.JobOutcome, error)
}

// Gauge tracks jobs in flight. prometheus.Gauge satisfies it.
type Gauge interface {
	Inc()
	Dec()
}

type nopGauge struct{}

func (nopGauge) Inc() {}
func (nopGauge) Dec() {}

// pool runs jobs in goroutines bounded by a RunLimiter. Jobs run on their
// own context so that stopping intake does not interrupt them; Shutdown
// cancels it only when draining times out.
type pool struct {
	proc     Processor
	limiter  *RunLimiter
	inFlight Gauge

	wg         sync.WaitGroup
	jobCtx     context.Context
	cancelJobs context.CancelFunc
}

func newPool(proc Processor, limiter *RunLimiter, inFlight Gauge) *pool {
	if inFlight == nil {
		inFlight = nopGauge{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &pool{
		proc:       proc,
		limiter:    limiter,
		inFlight:   inFlight,
		jobCtx:     ctx,
		cancelJobs: cancel,
	}
}

// start runs fn in a goroutine that owns one acquired limiter slot.
func (p *pool) start(fn func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.limiter.Release()
		fn(p.jobCtx)
	}()
}

func (p *pool) process(ctx context.Context, job core.Job) (core.JobOutcome, error) {
	p.inFlight.Inc()
	defer p.inFlight.Dec()
	return p.proc.Process(ctx, job)
}

// Shutdown waits for running jobs. If ctx ends first the jobs are cancelled,
// which leaves them to be delivered again, and ctx's error is returned.
func (p *pool) Shutdown(ctx context.Context) error {
	err := p.limiter.WaitForDrain(ctx)
	if err != nil {
		slog.Warn("import drain timed out, cancelling running jobs",
			"active", p.limiter.ActiveCount(),
		)
		p.cancelJobs()
	}
	p.wg.Wait()
	p.cancelJobs()
	return err
}

// WorkerConfig controls how a Worker reclaims abandoned jobs.
type WorkerConfig struct {
	// ClaimInterval is how often pending jobs are checked for reclaiming.
	ClaimInterval time.Duration
	// ClaimMinIdle is how long a job must be pending before it is reclaimed.
	ClaimMinIdle time.Duration
}

// Worker consumes jobs from a Broker.
type Worker struct {
	*pool
	broker Broker
	cfg    WorkerConfig
}

// NewWorker returns a worker that runs at most limiter.MaxConcurrent() jobs
// at once. inFlight may be nil.
func NewWorker(broker Broker, proc Processor, limiter *RunLimiter, cfg WorkerConfig, inFlight Gauge) *Worker {
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = time.Minute
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = 10 * time.Minute
	}
	return &Worker{
		pool:   newPool(proc, limiter, inFlight),
		broker: broker,
		cfg:    cfg,
	}
}

// Run consumes jobs until ctx is cancelled. The reader waits for a free slot
// before each read but holds none while blocked on the stream, so the claim
// loop can still take one. Jobs still running when Run returns are finished
// by Shutdown.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.broker.EnsureGroup(ctx); err != nil {
		return err
	}

	claimDone := make(chan struct{})
	go func() {
		defer close(claimDone)
		w.claimLoop(ctx)
	}()
	defer func() { <-claimDone }()

	slog.Info("import worker started",
		"workers", w.limiter.MaxConcurrent(),
		"claim_interval", w.cfg.ClaimInterval,
		"claim_min_idle", w.cfg.ClaimMinIdle,
	)

	for {
		if ctx.Err() != nil {
			slog.Info("import worker stopped")
			return nil
		}

		if err := w.limiter.WaitForSlot(ctx); err != nil {
			continue
		}

		msgs, err := w.broker.Read(ctx, 1)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("failed to read import jobs", "error", err)
				_ = sleepContext(ctx, readRetryDelay)
			}
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		// The message is owned by this consumer now. If the worker stops
		// before a slot frees up it stays pending and is reclaimed later.
		if err := w.acquire(ctx); err != nil {
			slog.Warn("import worker stopping, leaving job pending",
				"job_id", msgs[0].Job.ID,
				"message_id", msgs[0].ID,
			)
			continue
		}
		w.start(func(jobCtx context.Context) { w.handle(jobCtx, msgs) })
	}
}

// acquire waits for a slot until one frees up or ctx ends.
func (w *Worker) acquire(ctx context.Context) error {
	for {
		err := w.limiter.Acquire(ctx)
		if err == nil || ctx.Err() != nil {
			return err
		}
	}
}

// claimLoop reclaims jobs a crashed or stalled consumer left pending. It
// runs immediately on start, then every ClaimInterval.
func (w *Worker) claimLoop(ctx context.Context) {
	w.claim(ctx)

	ticker := time.NewTicker(w.cfg.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.claim(ctx)
		}
	}
}

// claim reclaims pending jobs one at a time, each under its own slot. When
// every slot stays busy past the limiter's wait the rest waits for the
// next tick.
func (w *Worker) claim(ctx context.Context) {
	for ctx.Err() == nil {
		if err := w.limiter.Acquire(ctx); err != nil {
			return
		}
		msgs, err := w.broker.Claim(ctx, w.cfg.ClaimMinIdle, 1)
		if err != nil || len(msgs) == 0 {
			w.limiter.Release()
			if err != nil && ctx.Err() == nil {
				slog.Error("failed to reclaim pending import jobs", "error", err)
			}
			return
		}
		slog.Info("reclaimed pending import job",
			"job_id", msgs[0].Job.ID,
			"message_id", msgs[0].ID,
		)
		w.start(func(jobCtx context.Context) { w.handle(jobCtx, msgs) })
	}
}

func (w *Worker) handle(ctx context.Context, msgs []Message) {
	for _, m := range msgs {
		log := logging.FromContext(logging.ContextWithJobID(ctx, m.Job.ID))

		out, err := w.process(ctx, m.Job)
		if err != nil {
			log.Warn("import job interrupted, leaving it for redelivery",
				"message_id", m.ID,
				"error", err,
			)
			continue
		}

		ackCtx, cancel := context.WithTimeout(context.Background(), ackTimeout)
		err = w.broker.Ack(ackCtx, m.ID)
		cancel()
		if err != nil {
			log.Error("failed to ack import job", "message_id", m.ID, "error", err)
		}

		log.Info("import job finished",
			"status", string(out.Status),
			"attempts", out.Attempts,
		)
	}
}

// InlineScheduler runs jobs in this process instead of publishing them.
// Jobs are lost if the process stops before they finish.
type InlineScheduler struct {
	*pool
}

// NewInlineScheduler returns a scheduler running jobs through proc,
// at most limiter.MaxConcurrent() at once.
func NewInlineScheduler(proc Processor, limiter *RunLimiter, inFlight Gauge) *InlineScheduler {
	return &InlineScheduler{pool: newPool(proc, limiter, inFlight)}
}

// Enqueue starts the job and returns its id. It fails with
// ErrTooManyImports when no slot frees up in time.
func (s *InlineScheduler) Enqueue(ctx context.Context, platformName, handle string) (string, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	job := core.Job{
		ID:         uuid.NewString(),
		Platform:   platformName,
		Source:     handle,
		EnqueuedAt: time.Now().UTC(),
	}
	s.start(func(jobCtx context.Context) {
		if _, err := s.process(jobCtx, job); err != nil {
			logging.FromContext(logging.ContextWithJobID(jobCtx, job.ID)).
				Warn("inline import job interrupted", "error", err)
		}
	})
	return job.ID, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
