// Package retry re-invokes a single asynchronous operation with exponential
// backoff until it succeeds, fails with a non-retryable error, or exhausts
// its retry budget.
//
// Transport, server and rate-limit failures are retried. Client, validation
// and cancellation failures propagate on first occurrence. When the budget is
// exhausted the last failure is returned unchanged so callers observe the
// same classification as a direct call would have produced.
package retry

import (
	"context"
	"time"

	"github.com/Sternrassler/resilient-api-client/pkg/apierror"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Attempt describes a failed attempt that is about to be retried.
type Attempt struct {
	// Number is the 0-based index of the failed attempt.
	Number int
	Err    error
	Delay  time.Duration
}

// Option customizes a retry sequence.
type Option func(*executor)

// WithClock sets the clock used for backoff waits.
func WithClock(clock clockwork.Clock) Option {
	return func(e *executor) { e.clock = clock }
}

// WithLogger sets the logger used for retry events.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *executor) { e.logger = logger }
}

// WithClassifier replaces apierror.Retryable as the retryability test.
func WithClassifier(retryable func(error) bool) Option {
	return func(e *executor) { e.retryable = retryable }
}

// WithNotify registers a callback invoked before every backoff wait.
func WithNotify(fn func(Attempt)) Option {
	return func(e *executor) { e.notify = fn }
}

// WithName labels log lines of this sequence, typically with the endpoint.
func WithName(name string) Option {
	return func(e *executor) { e.name = name }
}

type executor struct {
	cfg       Config
	clock     clockwork.Clock
	logger    zerolog.Logger
	retryable func(error) bool
	notify    func(Attempt)
	name      string
}

func newExecutor(cfg Config, opts []Option) *executor {
	e := &executor{
		cfg:       cfg.normalized(),
		clock:     clockwork.NewRealClock(),
		logger:    log.With().Str("component", "retry").Logger(),
		retryable: apierror.Retryable,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do executes op, retrying retryable failures according to cfg.
//
// Attempt 0 runs immediately. An aborted ctx, whether observed by op or
// during a backoff wait, ends the sequence at once with a cancellation
// failure that does not count as an attempt.
func Do[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error), opts ...Option) (T, error) {
	e := newExecutor(cfg, opts)
	sched := newSchedule(e.cfg)

	var zero T
	for attempt := 0; ; attempt++ {
		val, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				e.logger.Info().
					Str("endpoint", e.name).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return val, nil
		}

		class := apierror.ClassOf(err)

		if ctx.Err() != nil || class == apierror.ClassCancelled {
			if class == apierror.ClassCancelled {
				return zero, err
			}
			e.logger.Debug().Err(err).Str("endpoint", e.name).Msg("Attempt failed after cancellation")
			return zero, apierror.Cancelled(context.Cause(ctx))
		}

		if !e.retryable(err) {
			return zero, err
		}

		if attempt >= e.cfg.MaxRetries {
			retryExhaustedTotal.WithLabelValues(string(class)).Inc()
			e.logger.Warn().
				Err(err).
				Str("endpoint", e.name).
				Str("error_class", string(class)).
				Int("max_retries", e.cfg.MaxRetries).
				Msg("Retry attempts exhausted")
			return zero, err
		}

		delay := sched.next()
		if hint := apierror.RetryAfterOf(err); hint > delay {
			delay = min(hint, e.cfg.MaxDelay)
		}

		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(delay.Seconds())
		if e.notify != nil {
			e.notify(Attempt{Number: attempt, Err: err, Delay: delay})
		}

		e.logger.Debug().
			Err(err).
			Str("endpoint", e.name).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		if err := e.wait(ctx, delay); err != nil {
			e.logger.Warn().
				Str("endpoint", e.name).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return zero, err
		}
	}
}

// Run is Do for operations without a result value.
func Run(ctx context.Context, cfg Config, op func(context.Context) error, opts ...Option) error {
	_, err := Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}

// Wrap returns op guarded by Do with cfg, for handing to code that expects
// a plain operation (pagination fetchers, batch items).
func Wrap[T any](cfg Config, op func(context.Context) (T, error), opts ...Option) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return Do(ctx, cfg, op, opts...)
	}
}

func (e *executor) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		if ctx.Err() != nil {
			return apierror.Cancelled(context.Cause(ctx))
		}
		return nil
	}

	timer := e.clock.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return apierror.Cancelled(context.Cause(ctx))
	case <-timer.Chan():
		return nil
	}
}
