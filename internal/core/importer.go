package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/JonMunkholm/salesimport/internal/logging"
	"github.com/JonMunkholm/salesimport/internal/platform"
)

// ContextCheckInterval is how often, in rows, the run checks for cancellation.
var ContextCheckInterval = 100

// MaxFailedRows caps how many skipped rows a summary records in detail.
var MaxFailedRows = 1000

// Loader persists one batch atomically.
type Loader interface {
	Load(ctx context.Context, b *Batch) (LoadResult, error)
}

// Observer receives run progress. Implementations must be safe for
// concurrent use since runs execute in parallel.
type Observer interface {
	BatchLoaded(platform string, b *Batch, r LoadResult)
	RowFailed(platform string)
	RunFinished(platform string, s *RunSummary, err error)
}

type nopObserver struct{}

func (nopObserver) BatchLoaded(string, *Batch, LoadResult) {}
func (nopObserver) RowFailed(string)                       {}
func (nopObserver) RunFinished(string, *RunSummary, error) {}

// Importer runs one file through resolve, map, accumulate and load.
// It holds no per-run state and can serve concurrent runs.
type Importer struct {
	resolver platform.Resolver
	loader   Loader
	policy   RowErrorPolicy
	observer Observer
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithRowErrorPolicy sets how rows with unparseable values are handled.
func WithRowErrorPolicy(p RowErrorPolicy) ImporterOption {
	return func(i *Importer) { i.policy = p }
}

// WithObserver registers an observer for run progress.
func WithObserver(o Observer) ImporterOption {
	return func(i *Importer) {
		if o != nil {
			i.observer = o
		}
	}
}

// NewImporter returns an Importer. Rows that fail to parse are skipped
// unless WithRowErrorPolicy(AbortRun) is given.
func NewImporter(resolver platform.Resolver, loader Loader, opts ...ImporterOption) *Importer {
	i := &Importer{
		resolver: resolver,
		loader:   loader,
		policy:   SkipRow,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run imports src for the named platform. Rows are read strictly in order
// and each full batch is loaded before more rows are read, so at most one
// batch is held in memory.
//
// The returned summary is non-nil whenever the platform resolved, and
// reflects the batches committed before any failure. Errors are a
// *ConfigurationError, a *ParsingError (abort policy), a *PersistenceError,
// or a source read error.
func (i *Importer) Run(ctx context.Context, platformName string, src io.Reader) (*RunSummary, error) {
	start := time.Now()

	p, err := i.resolver.Resolve(ctx, platformName)
	if err != nil {
		var invalid *platform.InvalidConfigError
		if errors.Is(err, platform.ErrNotFound) || errors.As(err, &invalid) {
			err = &ConfigurationError{Platform: platformName, Err: err}
		} else {
			err = fmt.Errorf("resolve platform %q: %w", platformName, err)
		}
		i.observer.RunFinished(platformName, nil, err)
		return nil, err
	}

	summary := &RunSummary{Platform: p.Name(), PlatformID: p.ID}
	err = i.run(ctx, p, src, summary)
	summary.Duration = time.Since(start)

	log := logging.FromContext(ctx).With(slog.String("platform", p.Name()))
	if err != nil {
		log.Error("import run failed",
			slog.Int("rows_read", summary.RowsRead),
			slog.Int("batches", summary.Batches),
			slog.String("error", err.Error()),
		)
	} else {
		log.Info("import run complete",
			slog.Int("rows_read", summary.RowsRead),
			slog.Int("rows_failed", summary.RowsRead-summary.RowsMapped),
			slog.Int("batches", summary.Batches),
			slog.Int("orders_inserted", summary.Totals.Orders.Inserted),
			slog.Int("orders_skipped", summary.Totals.Orders.Skipped),
			slog.Duration("duration", summary.Duration),
		)
	}

	i.observer.RunFinished(p.Name(), summary, err)
	return summary, err
}

func (i *Importer) run(ctx context.Context, p *platform.Platform, src io.Reader, summary *RunSummary) error {
	rows, err := NewRowReader(src)
	if err != nil {
		return err
	}
	defer func() { summary.BytesRead = rows.BytesRead() }()

	mapper := NewRowMapper(p)
	acc := NewBatchAccumulator(p.Config.BatchSize())

	for {
		if summary.RowsRead%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		row, line, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read row after line %d: %w", rows.Line(), err)
		}
		summary.RowsRead++

		frags, err := mapper.Map(row)
		if err != nil {
			var perr *ParsingError
			if !errors.As(err, &perr) {
				return err
			}
			perr.LineNumber = line
			if i.policy == AbortRun {
				return perr
			}
			i.skip(ctx, p.Name(), summary, perr)
			continue
		}
		summary.RowsMapped++

		if batch, ready := acc.Add(frags); ready {
			if err := i.load(ctx, p.Name(), batch, summary); err != nil {
				return err
			}
		}
	}

	if batch, ok := acc.Drain(); ok {
		return i.load(ctx, p.Name(), batch, summary)
	}
	return nil
}

func (i *Importer) load(ctx context.Context, platformName string, b *Batch, summary *RunSummary) error {
	result, err := i.loader.Load(ctx, b)
	if err != nil {
		return err
	}
	summary.Batches++
	summary.Totals.Add(result)
	i.observer.BatchLoaded(platformName, b, result)

	logging.FromContext(ctx).Debug("batch loaded",
		slog.String("platform", platformName),
		slog.Int("batch", b.Number),
		slog.Int("rows", b.Rows),
		slog.Int("customers_inserted", result.Customers.Inserted),
		slog.Int("products_inserted", result.Products.Inserted),
		slog.Int("orders_inserted", result.Orders.Inserted),
		slog.Int("orders_skipped", result.Orders.Skipped),
		slog.Int("items_inserted", result.OrderItems.Inserted),
		slog.Int("deliveries_inserted", result.Deliveries.Inserted),
	)
	return nil
}

func (i *Importer) skip(ctx context.Context, platformName string, summary *RunSummary, perr *ParsingError) {
	i.observer.RowFailed(platformName)
	if len(summary.FailedRows) < MaxFailedRows {
		summary.FailedRows = append(summary.FailedRows, FailedRow{
			LineNumber: perr.LineNumber,
			Reason:     perr.Error(),
		})
	}
	logging.FromContext(ctx).Warn("row skipped",
		slog.String("platform", platformName),
		slog.Int("line", perr.LineNumber),
		slog.String("field", perr.Field),
		slog.String("value", perr.Value),
	)
}
