// Package cancel composes a caller cancellation signal with an internally
// generated timeout into one effective signal for a single downstream call.
//
// A Signal is one-shot: once aborted it stays aborted and reports the cause
// of the first abort. Listeners registered with OnActivate are removable so
// the bridge between a caller signal and an effective signal can be torn down
// deterministically when the guarded call returns.
package cancel

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrAborted is the cause used when Abort is called without one.
	ErrAborted = errors.New("cancel: signal aborted")

	// ErrTimeout is the cause reported when the composed timeout fires.
	ErrTimeout = fmt.Errorf("cancel: timeout elapsed: %w", context.DeadlineExceeded)
)

type listener struct {
	id uint64
	fn func(cause error)
}

// Signal is a monotonic cancellation signal. The zero value is not usable;
// create signals with NewSignal. A nil *Signal never aborts.
type Signal struct {
	mu        sync.Mutex
	done      chan struct{}
	cause     error
	listeners []listener
	nextID    uint64
}

// NewSignal creates an inactive signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Aborted creates a signal that is already active with the given cause.
func Aborted(cause error) *Signal {
	s := NewSignal()
	s.Abort(cause)
	return s
}

// Abort activates the signal. Only the first call has an effect; it returns
// false when the signal was already active.
func (s *Signal) Abort(cause error) bool {
	if cause == nil {
		cause = ErrAborted
	}

	s.mu.Lock()
	if s.cause != nil {
		s.mu.Unlock()
		return false
	}
	s.cause = cause
	close(s.done)
	pending := s.listeners
	s.listeners = nil
	s.mu.Unlock()

	for _, l := range pending {
		l.fn(cause)
	}
	return true
}

// IsActive reports whether the signal has been aborted.
func (s *Signal) IsActive() bool {
	if s == nil {
		return false
	}
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the signal aborts. For a nil signal it
// returns nil, which blocks forever in a select.
func (s *Signal) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.done
}

// Err returns the abort cause, or nil while the signal is inactive.
func (s *Signal) Err() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// OnActivate registers fn to run once when the signal aborts. If the signal
// is already active fn runs immediately on the calling goroutine.
// The returned function unregisters fn and is safe to call more than once.
func (s *Signal) OnActivate(fn func(cause error)) (remove func()) {
	if s == nil {
		return func() {}
	}

	s.mu.Lock()
	if s.cause != nil {
		cause := s.cause
		s.mu.Unlock()
		fn(cause)
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns the number of registered, not yet fired listeners.
func (s *Signal) ListenerCount() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// FromContext bridges ctx to a Signal. The returned stop function detaches
// the bridge. A context that can never be cancelled yields a nil signal.
func FromContext(ctx context.Context) (*Signal, func()) {
	if ctx.Done() == nil {
		return nil, func() {}
	}
	if ctx.Err() != nil {
		return Aborted(context.Cause(ctx)), func() {}
	}

	s := NewSignal()
	stop := context.AfterFunc(ctx, func() {
		s.Abort(context.Cause(ctx))
	})
	return s, func() { stop() }
}
