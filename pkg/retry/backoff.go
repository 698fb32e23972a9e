package retry

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// schedule produces the backoff delays of one retry sequence.
type schedule struct {
	cfg   Config
	curve *backoff.ExponentialBackOff
	rand  func() float64
}

func newSchedule(cfg Config) *schedule {
	curve := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	curve.Reset()

	return &schedule{cfg: cfg, curve: curve, rand: rand.Float64}
}

// base returns the next un-jittered delay: min(InitialDelay·Multiplier^n, MaxDelay).
func (s *schedule) base() time.Duration {
	d := s.curve.NextBackOff()
	if d == backoff.Stop || d > s.cfg.MaxDelay {
		d = s.cfg.MaxDelay
	}
	return d
}

// next returns the next delay with upward jitter, clamped to MaxDelay.
func (s *schedule) next() time.Duration {
	d := s.base()
	if s.cfg.Jitter > 0 {
		d += time.Duration(float64(d) * s.cfg.Jitter * s.rand())
	}
	if d > s.cfg.MaxDelay {
		d = s.cfg.MaxDelay
	}
	return d
}

// Delay returns the un-jittered backoff before retry n (0-based) under cfg.
func Delay(cfg Config, n int) time.Duration {
	if n < 0 {
		return 0
	}
	s := newSchedule(cfg.normalized())
	var d time.Duration
	for i := 0; i <= n; i++ {
		d = s.base()
	}
	return d
}
