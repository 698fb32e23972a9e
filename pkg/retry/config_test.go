package retry

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialDelay != 1*time.Second {
		t.Errorf("InitialDelay = %v, want 1s", config.InitialDelay)
	}
	if config.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", config.MaxDelay)
	}
	if config.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want 2.0", config.Multiplier)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid: %v", err)
	}
}

func TestConfig_Apply(t *testing.T) {
	retries := 0
	maxDelay := 5 * time.Second

	got := DefaultConfig().Apply(Override{
		MaxRetries: &retries,
		MaxDelay:   &maxDelay,
	})

	if got.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want override 0", got.MaxRetries)
	}
	if got.MaxDelay != maxDelay {
		t.Errorf("MaxDelay = %v, want %v", got.MaxDelay, maxDelay)
	}
	if got.InitialDelay != DefaultConfig().InitialDelay {
		t.Errorf("InitialDelay = %v, want default kept", got.InitialDelay)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "zero value", config: Config{}, wantErr: false},
		{name: "negative retries", config: Config{MaxRetries: -1}, wantErr: true},
		{name: "negative delay", config: Config{InitialDelay: -time.Second}, wantErr: true},
		{name: "shrinking multiplier", config: Config{Multiplier: 0.5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Normalized(t *testing.T) {
	c := Config{
		MaxRetries:   -2,
		InitialDelay: 2 * time.Second,
		MaxDelay:     time.Second,
		Jitter:       5,
	}.normalized()

	if c.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", c.MaxRetries)
	}
	if c.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want 2.0", c.Multiplier)
	}
	if c.MaxDelay != 2*time.Second {
		t.Errorf("MaxDelay = %v, want raised to InitialDelay", c.MaxDelay)
	}
	if c.Jitter != 1.0 {
		t.Errorf("Jitter = %v, want clamped to Multiplier-1", c.Jitter)
	}
}

func TestDelay(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1 * time.Second,
		1 * time.Second,
	}

	for n, want := range expected {
		if got := Delay(cfg, n); got != want {
			t.Errorf("Delay(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestDelay_Monotonic(t *testing.T) {
	cfg := Config{
		InitialDelay: 3 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.7,
	}

	prev := time.Duration(0)
	for n := 0; n < 30; n++ {
		d := Delay(cfg, n)
		if d < prev {
			t.Fatalf("Delay(%d) = %v < Delay(%d) = %v", n, d, n-1, prev)
		}
		if d > cfg.MaxDelay {
			t.Fatalf("Delay(%d) = %v exceeds MaxDelay", n, d)
		}
		prev = d
	}
}

func TestSchedule_JitterRespectsCap(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     300 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       0.5,
	}.normalized()

	for run := 0; run < 50; run++ {
		s := newSchedule(cfg)
		prev := time.Duration(0)
		for n := 0; n < 6; n++ {
			d := s.next()
			if d > cfg.MaxDelay {
				t.Fatalf("jittered delay %v exceeds MaxDelay %v", d, cfg.MaxDelay)
			}
			if d < Delay(cfg, n) {
				t.Fatalf("jittered delay %v below base %v", d, Delay(cfg, n))
			}
			if d < prev {
				t.Fatalf("jittered delay %v shrank from %v", d, prev)
			}
			prev = d
		}
	}
}

func TestSchedule_FullJitter(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}.normalized()

	s := newSchedule(cfg)
	s.rand = func() float64 { return 1.0 }

	if d := s.next(); d != 120*time.Millisecond {
		t.Errorf("first delay = %v, want 120ms", d)
	}
	if d := s.next(); d != 240*time.Millisecond {
		t.Errorf("second delay = %v, want 240ms", d)
	}
}
