package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	quotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "api_rate_limit_remaining",
		Help: "Requests remaining in the current server quota window",
	})

	quotaBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "api_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the server quota was exhausted",
	})

	quotaThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "api_rate_limit_throttles_total",
		Help: "Total number of requests delayed because the server quota was running low",
	})
)

// Defaults for NewTracker.
const (
	DefaultReserve      = 0
	DefaultWarnFraction = 0.1
)

// Decision is the outcome of Tracker.Check.
type Decision struct {
	// Blocked means the quota is exhausted and the request must not be sent
	// before Wait has elapsed.
	Blocked bool

	// Wait is how long to hold the request. For a throttled request the
	// remaining quota is spread over the rest of the window.
	Wait time.Duration

	// Remaining is the quota the decision was based on, -1 when unknown.
	Remaining int
}

// Tracker gates requests on the shared quota state.
type Tracker struct {
	store        Store
	reserve      int
	warnFraction float64
	clock        clockwork.Clock
	logger       zerolog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithReserve keeps n requests of every window unused.
func WithReserve(n int) Option {
	return func(t *Tracker) { t.reserve = max(n, 0) }
}

// WithWarnFraction sets the remaining/limit ratio below which requests are paced.
// Zero disables pacing.
func WithWarnFraction(f float64) Option {
	return func(t *Tracker) { t.warnFraction = f }
}

// WithClock replaces the wall clock.
func WithClock(c clockwork.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// NewTracker creates a tracker backed by store.
func NewTracker(store Store, logger zerolog.Logger, opts ...Option) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	t := &Tracker{
		store:        store,
		reserve:      DefaultReserve,
		warnFraction: DefaultWarnFraction,
		clock:        clockwork.NewRealClock(),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State returns the current quota state, or nil when none is known or the
// stored window has already reset.
func (t *Tracker) State(ctx context.Context) (*State, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rate limit state: %w", err)
	}
	if state == nil || state.Expired(t.clock.Now()) {
		return nil, nil
	}
	return state, nil
}

// UpdateFromHeaders records the quota carried by a response. Responses
// without quota headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(headers, t.clock.Now())
	if err != nil || !ok {
		return err
	}

	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	quotaRemaining.Set(float64(state.Remaining))

	switch {
	case state.Exhausted(t.reserve):
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit quota exhausted")
	case state.Low(t.warnFraction):
		t.logger.Info().
			Int("remaining", state.Remaining).
			Int("limit", state.Limit).
			Msg("Rate limit quota running low")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Msg("Rate limit state updated")
	}

	return nil
}

// Check decides whether a request may be sent now.
func (t *Tracker) Check(ctx context.Context) (Decision, error) {
	state, err := t.State(ctx)
	if err != nil {
		return Decision{Remaining: -1}, err
	}
	if state == nil {
		return Decision{Remaining: -1}, nil
	}

	now := t.clock.Now()
	untilReset := state.TimeUntilReset(now)

	if state.Exhausted(t.reserve) {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", untilReset).
			Msg("Rate limit quota exhausted - blocking request")
		quotaBlocksTotal.Inc()
		return Decision{Blocked: true, Wait: untilReset, Remaining: state.Remaining}, nil
	}

	if state.Low(t.warnFraction) {
		wait := untilReset / time.Duration(state.Remaining-t.reserve+1)
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", wait).
			Msg("Rate limit quota low - throttling request")
		quotaThrottlesTotal.Inc()
		return Decision{Wait: wait, Remaining: state.Remaining}, nil
	}

	return Decision{Remaining: state.Remaining}, nil
}
