// Package batch implements the three-stage enumerate/process/aggregate executor used by
// maintenance jobs and entity-activity scans.
package batch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// Keyed is implemented by work items; the key identifies the item's result.
type Keyed interface {
	Key() string
}

// Result is the per-item output of the Process stage. Err tags a failed item;
// a failed item still occupies its slot so the result count always matches the item count.
type Result[I Keyed, V any] struct {
	Item  I
	Value V
	Err   error
}

// Key returns the identity of the item that produced the result.
func (r Result[I, V]) Key() string {
	return r.Item.Key()
}

// Failed reports whether the item errored.
func (r Result[I, V]) Failed() bool {
	return r.Err != nil
}

// Stages bundles the per-job-type functions the pipeline composes.
type Stages[S any, I Keyed, V any, A any] struct {
	// Enumerate lists the work items for a selector. An error here is fatal.
	Enumerate func(ctx context.Context, sel S) ([]I, error)
	// Open runs sequentially for each item after enumeration and before any processing.
	// It may enrich the item (e.g. attach a run id). An error here is fatal. Optional.
	Open func(ctx context.Context, item I) (I, error)
	// Process handles one item. Errors and panics are captured as error-tagged results.
	Process func(ctx context.Context, item I) (V, error)
	// Aggregate runs once every item has a result, including when there were no items.
	Aggregate func(ctx context.Context, results []Result[I, V]) (A, error)
}

// Options configure a Pipeline.
type Options struct {
	// Concurrency bounds the number of items processed at once; defaults to 1.
	Concurrency int
	// ItemTimeout bounds a single Process call; zero disables the per-item deadline.
	ItemTimeout time.Duration
	// AggregateTimeout bounds the Aggregate stage, which runs detached from the caller's
	// cancellation so results are recorded even after the caller gave up. Defaults to one minute.
	AggregateTimeout time.Duration
	Logger           *slog.Logger
}

const defaultAggregateTimeout = time.Minute

// Pipeline executes Stages with a bounded worker pool and a barrier before Aggregate.
type Pipeline[S any, I Keyed, V any, A any] struct {
	stages      Stages[S, I, V, A]
	concurrency int
	itemTimeout time.Duration
	aggTimeout  time.Duration
	logger      *slog.Logger
}

// Stats summarises one invocation.
type Stats struct {
	Items    int
	Failed   int
	Duration time.Duration
}

// ErrStageMissing is returned when a required stage function is nil.
var ErrStageMissing = errors.New("pipeline stage is not configured")

// New validates the stages and constructs a Pipeline.
func New[S any, I Keyed, V any, A any](stages Stages[S, I, V, A], opts Options) (*Pipeline[S, I, V, A], error) {
	if stages.Enumerate == nil {
		return nil, fmt.Errorf("enumerate: %w", ErrStageMissing)
	}
	if stages.Process == nil {
		return nil, fmt.Errorf("process: %w", ErrStageMissing)
	}
	if stages.Aggregate == nil {
		return nil, fmt.Errorf("aggregate: %w", ErrStageMissing)
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "batch_pipeline")
	}
	return &Pipeline[S, I, V, A]{
		stages:      stages,
		concurrency: workers,
		itemTimeout: opts.ItemTimeout,
		aggTimeout:  cmp.Or(max(opts.AggregateTimeout, 0), defaultAggregateTimeout),
		logger:      logger,
	}, nil
}

// Run executes enumerate, open, process and aggregate for sel.
// Only Enumerate, Open and Aggregate errors are returned; item failures are data.
func (p *Pipeline[S, I, V, A]) Run(ctx context.Context, sel S) (A, Stats, error) {
	var zero A
	start := time.Now()

	items, err := p.stages.Enumerate(ctx, sel)
	if err != nil {
		return zero, Stats{Duration: time.Since(start)}, fmt.Errorf("enumerate: %w", err)
	}

	if p.stages.Open != nil {
		for i := range items {
			opened, openErr := p.stages.Open(ctx, items[i])
			if openErr != nil {
				return zero, Stats{Items: len(items), Duration: time.Since(start)},
					fmt.Errorf("open %s: %w", items[i].Key(), openErr)
			}
			items[i] = opened
		}
	}

	results := p.processAll(ctx, items)

	stats := Stats{Items: len(results)}
	for i := range results {
		if results[i].Failed() {
			stats.Failed++
		}
	}

	aggCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.aggTimeout)
	defer cancel()
	out, err := p.stages.Aggregate(aggCtx, results)
	stats.Duration = time.Since(start)
	if err != nil {
		return zero, stats, fmt.Errorf("aggregate: %w", err)
	}
	return out, stats, nil
}

// processAll fans items out to the worker pool and waits for all of them.
// Results are written by index, so no two workers touch the same slot.
func (p *Pipeline[S, I, V, A]) processAll(ctx context.Context, items []I) []Result[I, V] {
	results := make([]Result[I, V], len(items))
	if len(items) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i := range items {
		g.Go(func() error {
			results[i] = p.processOne(ctx, items[i])
			return nil
		})
	}
	// Workers never return errors; Wait is the barrier.
	_ = g.Wait()
	return results
}

func (p *Pipeline[S, I, V, A]) processOne(ctx context.Context, item I) (res Result[I, V]) {
	res.Item = item

	itemCtx := ctx
	if p.itemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, p.itemTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			res.Err = &PanicError{Value: rec, Stack: debug.Stack()}
			p.logger.ErrorContext(ctx, "batch item panicked", "key", item.Key(), "panic", rec)
		}
	}()

	if err := itemCtx.Err(); err != nil {
		res.Err = err
		return res
	}

	v, err := p.stages.Process(itemCtx, item)
	if err != nil {
		res.Err = err
		p.logger.WarnContext(ctx, "batch item failed", "key", item.Key(), "error", err)
		return res
	}
	res.Value = v
	return res
}

// PanicError wraps a value recovered from a panicking Process call.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
