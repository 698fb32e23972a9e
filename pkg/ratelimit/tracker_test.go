package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

func quotaHeaders(remaining, limit, resetSeconds int) http.Header {
	h := http.Header{}
	h.Set(HeaderRemaining, strconv.Itoa(remaining))
	h.Set(HeaderLimit, strconv.Itoa(limit))
	h.Set(HeaderReset, strconv.Itoa(resetSeconds))
	return h
}

func newTestTracker(clock clockwork.Clock, opts ...Option) *Tracker {
	opts = append([]Option{WithClock(clock)}, opts...)
	return NewTracker(NewMemoryStore(), zerolog.Nop(), opts...)
}

func TestTracker_Check_NoState(t *testing.T) {
	tracker := newTestTracker(clockwork.NewFakeClock())

	d, err := tracker.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.Blocked || d.Wait != 0 || d.Remaining != -1 {
		t.Errorf("Check() = %+v, want unblocked with unknown remaining", d)
	}
}

func TestTracker_Check(t *testing.T) {
	tests := []struct {
		name        string
		headers     http.Header
		reserve     int
		wantBlocked bool
		wantWait    time.Duration
	}{
		{
			name:    "healthy",
			headers: quotaHeaders(90, 100, 60),
		},
		{
			name:        "exhausted blocks until reset",
			headers:     quotaHeaders(0, 100, 60),
			wantBlocked: true,
			wantWait:    60 * time.Second,
		},
		{
			name:        "reserve blocks early",
			headers:     quotaHeaders(3, 100, 20),
			reserve:     3,
			wantBlocked: true,
			wantWait:    20 * time.Second,
		},
		{
			name:     "low quota paces over the window",
			headers:  quotaHeaders(5, 100, 60),
			wantWait: 10 * time.Second,
		},
		{
			name:    "headers absent",
			headers: http.Header{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			tracker := newTestTracker(clock, WithReserve(tt.reserve))
			ctx := context.Background()

			if err := tracker.UpdateFromHeaders(ctx, tt.headers); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			d, err := tracker.Check(ctx)
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if d.Blocked != tt.wantBlocked {
				t.Errorf("Blocked = %v, want %v", d.Blocked, tt.wantBlocked)
			}
			if d.Wait != tt.wantWait {
				t.Errorf("Wait = %v, want %v", d.Wait, tt.wantWait)
			}
		})
	}
}

func TestTracker_WindowReset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := newTestTracker(clock)
	ctx := context.Background()

	if err := tracker.UpdateFromHeaders(ctx, quotaHeaders(0, 100, 30)); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	d, _ := tracker.Check(ctx)
	if !d.Blocked {
		t.Fatal("expected request to be blocked before reset")
	}

	clock.Advance(30 * time.Second)

	d, err := tracker.Check(ctx)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.Blocked {
		t.Error("expected request to pass once the window reset")
	}

	state, err := tracker.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state != nil {
		t.Errorf("State() = %+v, want nil after reset", state)
	}
}

func TestTracker_UpdateFromHeaders_Invalid(t *testing.T) {
	tracker := newTestTracker(clockwork.NewFakeClock())

	h := http.Header{}
	h.Set(HeaderRemaining, "oops")
	h.Set(HeaderReset, "10")

	if err := tracker.UpdateFromHeaders(context.Background(), h); err == nil {
		t.Error("UpdateFromHeaders() expected error for malformed header")
	}
}

func TestMemoryStore_KeepsNewest(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	newer := &State{Remaining: 10, LastUpdate: now}
	older := &State{Remaining: 50, LastUpdate: now.Add(-time.Second)}

	if err := store.Save(ctx, newer); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, older); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Remaining != 10 {
		t.Errorf("Remaining = %d, want 10", got.Remaining)
	}

	if err := store.Save(ctx, nil); err == nil {
		t.Error("Save(nil) expected error")
	}
}
