package retry

import (
	"fmt"
	"time"
)

// Config holds the configuration for one retry sequence.
type Config struct {
	// MaxRetries is the number of re-attempts after the initial attempt.
	MaxRetries int

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps every backoff, jitter included.
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor between retries.
	Multiplier float64

	// Jitter is the fraction of the base delay that may be added at random.
	// It is clamped to Multiplier-1 so delays never shrink between retries.
	Jitter float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Override carries call-site overrides. Nil fields keep the base value.
type Override struct {
	MaxRetries   *int
	InitialDelay *time.Duration
	MaxDelay     *time.Duration
	Multiplier   *float64
	Jitter       *float64
}

// Apply returns c with every field set in o replacing the base value.
func (c Config) Apply(o Override) Config {
	if o.MaxRetries != nil {
		c.MaxRetries = *o.MaxRetries
	}
	if o.InitialDelay != nil {
		c.InitialDelay = *o.InitialDelay
	}
	if o.MaxDelay != nil {
		c.MaxDelay = *o.MaxDelay
	}
	if o.Multiplier != nil {
		c.Multiplier = *o.Multiplier
	}
	if o.Jitter != nil {
		c.Jitter = *o.Jitter
	}
	return c
}

// Validate reports configuration values that cannot be normalized sensibly.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", c.MaxRetries)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be >= 0 (got %v)", c.InitialDelay)
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("max_delay must be >= 0 (got %v)", c.MaxDelay)
	}
	if c.Multiplier != 0 && c.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1 (got %v)", c.Multiplier)
	}
	return nil
}

// normalized resolves zero values and clamps out-of-range fields.
func (c Config) normalized() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2.0
	}
	if c.MaxDelay <= 0 || c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.Jitter > c.Multiplier-1 {
		c.Jitter = c.Multiplier - 1
	}
	return c
}
