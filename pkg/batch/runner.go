// Package batch runs many independent operations with a concurrency ceiling
// and per-item success/failure accounting.
//
// Items are launched strictly in submission order through a sliding window:
// whenever a running item settles the next pending item starts. Outcomes are
// stored at the submission index, so the result order never depends on
// completion order.
//
// With StopOnError the first failure aborts the batch: running items see
// their context cancelled, pending items never start, and Run returns that
// failure instead of an outcome slice. Later failures are discarded.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/resilient-api-client/pkg/apierror"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultConcurrency is the ceiling used by DefaultOptions.
const DefaultConcurrency = 5

// ErrAborted is the cancellation cause seen by running items when a
// fail-fast batch aborts.
var ErrAborted = errors.New("batch: aborted after item failure")

// Options configures one batch run.
type Options struct {
	// Concurrency is the maximum number of items running at once.
	// Values below 1 are raised to 1.
	Concurrency int

	// StopOnError aborts the batch on the first failure.
	StopOnError bool

	// Name labels log lines for this batch.
	Name string
}

// DefaultOptions returns the default batch options.
func DefaultOptions() Options {
	return Options{Concurrency: DefaultConcurrency}
}

type completion[T any] struct {
	index int
	value T
	err   error
}

// scheduler is the accounting of one Run call. It is owned by the
// scheduling loop; running items report back through done.
type scheduler[T any] struct {
	items   []Item[T]
	results []Outcome[T]
	next    int
	active  int
	aborted bool
	done    chan completion[T]

	fulfilled int
	rejected  int
}

// Run executes items with at most opts.Concurrency running at once.
//
// Without StopOnError it always returns one outcome per item, in submission
// order, once every item has settled; the error is nil. With StopOnError the
// first failure is returned as the error and the outcome slice is nil.
//
// If ctx is cancelled, items not yet started are not launched: they settle
// as rejected with a cancellation failure (or, under StopOnError, the
// cancellation is the batch failure).
func Run[T any](ctx context.Context, items []Item[T], opts Options) ([]Outcome[T], error) {
	if len(items) == 0 {
		return []Outcome[T]{}, nil
	}

	limit := max(opts.Concurrency, 1)
	logger := log.With().Str("component", "batch").Str("batch", opts.Name).Logger()
	start := time.Now()

	s := &scheduler[T]{
		items:   items,
		results: make([]Outcome[T], len(items)),
		// buffered so items finishing after an abort never block
		done: make(chan completion[T], len(items)),
	}

	runCtx, abort := context.WithCancelCause(ctx)

	logger.Debug().
		Int("items", len(items)).
		Int("concurrency", limit).
		Bool("stop_on_error", opts.StopOnError).
		Msg("Starting batch")

	for {
		for !s.aborted && s.active < limit && s.next < len(items) {
			if ctx.Err() != nil {
				err := apierror.Cancelled(context.Cause(ctx))
				if opts.StopOnError {
					s.abort(abort, err, logger)
					return nil, err
				}
				s.settle(completion[T]{index: s.next, err: err})
				s.next++
				continue
			}
			s.launch(runCtx, s.next)
			s.next++
		}

		if s.active == 0 {
			break
		}

		c := <-s.done
		s.active--
		batchInflight.Dec()

		if c.err != nil && opts.StopOnError {
			logger.Warn().
				Err(c.err).
				Int("index", c.index).
				Str("label", items[c.index].Label).
				Int("in_flight", s.active).
				Int("not_started", len(items)-s.next).
				Msg("Batch item failed - aborting batch")
			s.abort(abort, c.err, logger)
			return nil, c.err
		}

		s.settle(c)
	}

	abort(nil)

	logger.Info().
		Int("items", len(items)).
		Int("fulfilled", s.fulfilled).
		Int("rejected", s.rejected).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return s.results, nil
}

func (s *scheduler[T]) launch(ctx context.Context, index int) {
	s.active++
	batchInflight.Inc()

	item := s.items[index]
	go func() {
		c := completion[T]{index: index}
		defer func() {
			if r := recover(); r != nil {
				c.err = fmt.Errorf("batch: item %d panicked: %v", index, r)
			}
			s.done <- c
		}()

		if item.Run == nil {
			c.err = fmt.Errorf("batch: item %d has no run function", index)
			return
		}
		c.value, c.err = item.Run(ctx)
	}()
}

func (s *scheduler[T]) settle(c completion[T]) {
	o := Outcome[T]{
		Index: c.index,
		Label: s.items[c.index].Label,
	}
	if c.err != nil {
		o.Status = StatusRejected
		o.Err = c.err
		s.rejected++
	} else {
		o.Status = StatusFulfilled
		o.Value = c.value
		s.fulfilled++
	}
	s.results[c.index] = o
	batchItemsTotal.WithLabelValues(string(o.Status)).Inc()
}

// abort raises the shared abort signal. Items still running settle into the
// buffered channel and are discarded.
func (s *scheduler[T]) abort(cancel context.CancelCauseFunc, cause error, logger zerolog.Logger) {
	s.aborted = true
	batchAbortsTotal.Inc()
	batchItemsTotal.WithLabelValues(string(StatusRejected)).Inc()
	cancel(fmt.Errorf("%w: %v", ErrAborted, cause))

	if s.active > 0 {
		// stragglers still decrement the gauge as they finish
		go func(n int) {
			for i := 0; i < n; i++ {
				<-s.done
				batchInflight.Dec()
			}
		}(s.active)
	}

	logger.Error().
		Err(cause).
		Int("started", s.next).
		Int("items", len(s.items)).
		Msg("Batch aborted")
}
