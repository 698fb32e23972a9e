package cancel

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Composer merges caller signals with timeouts. It owns every signal and
// timer it creates.
type Composer struct {
	clock clockwork.Clock
}

// NewComposer creates a composer driven by clock. A nil clock uses the real clock.
func NewComposer(clock clockwork.Clock) *Composer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Composer{clock: clock}
}

var defaultComposer = NewComposer(nil)

// Compose composes caller and timeout using the real clock.
func Compose(caller *Signal, timeout time.Duration) (*Signal, func()) {
	return defaultComposer.Compose(caller, timeout)
}

// WithTimeout composes ctx and timeout using the real clock.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, func()) {
	return defaultComposer.WithTimeout(ctx, timeout)
}

// Compose returns the effective signal for one downstream call and the
// cleanup that must run when that call returns.
//
// Without a timeout the caller signal is returned unchanged. With a timeout
// the effective signal aborts when either the caller aborts or the timer
// fires, whichever happens first. A caller that is already aborted yields an
// aborted effective signal and no timer is armed.
//
// Cleanup stops the timer and detaches the listener bridging the caller to
// the effective signal. It is idempotent.
func (c *Composer) Compose(caller *Signal, timeout time.Duration) (*Signal, func()) {
	if timeout <= 0 {
		return caller, func() {}
	}
	if caller.IsActive() {
		return Aborted(caller.Err()), func() {}
	}

	effective := NewSignal()
	timer := c.clock.AfterFunc(timeout, func() {
		effective.Abort(ErrTimeout)
	})
	detachCaller := caller.OnActivate(func(cause error) {
		effective.Abort(cause)
	})
	// release the timer as soon as the caller wins
	detachTimer := effective.OnActivate(func(error) {
		timer.Stop()
	})

	var once sync.Once
	return effective, func() {
		once.Do(func() {
			timer.Stop()
			detachCaller()
			detachTimer()
		})
	}
}

// WithTimeout derives a context that is cancelled when ctx is cancelled or
// timeout elapses. context.Cause on the derived context reports ErrTimeout
// when the timer won. The returned function releases the timer and all
// bridging listeners and must be called once the guarded call returns.
func (c *Composer) WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, func()) {
	if timeout <= 0 {
		return ctx, func() {}
	}

	caller, detachContext := FromContext(ctx)
	effective, cleanup := c.Compose(caller, timeout)

	out, cancelOut := context.WithCancelCause(ctx)
	detachOut := effective.OnActivate(func(cause error) {
		cancelOut(cause)
	})

	return out, func() {
		detachOut()
		cleanup()
		detachContext()
		cancelOut(context.Canceled)
	}
}
