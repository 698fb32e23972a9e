package cancel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_AbortIsOneShot(t *testing.T) {
	s := NewSignal()
	require.False(t, s.IsActive())
	require.NoError(t, s.Err())

	first := errors.New("first")
	assert.True(t, s.Abort(first))
	assert.False(t, s.Abort(errors.New("second")))

	assert.True(t, s.IsActive())
	assert.ErrorIs(t, s.Err(), first)

	select {
	case <-s.Done():
	default:
		t.Fatal("Done() should be closed after Abort")
	}
}

func TestSignal_AbortWithoutCause(t *testing.T) {
	s := NewSignal()
	s.Abort(nil)
	assert.ErrorIs(t, s.Err(), ErrAborted)
}

func TestSignal_OnActivate(t *testing.T) {
	s := NewSignal()

	var calls []error
	s.OnActivate(func(cause error) { calls = append(calls, cause) })
	remove := s.OnActivate(func(cause error) { t.Error("removed listener must not fire") })
	require.Equal(t, 2, s.ListenerCount())

	remove()
	remove()
	require.Equal(t, 1, s.ListenerCount())

	cause := errors.New("stop")
	s.Abort(cause)
	s.Abort(errors.New("again"))

	require.Len(t, calls, 1)
	assert.ErrorIs(t, calls[0], cause)
	assert.Equal(t, 0, s.ListenerCount())
}

func TestSignal_OnActivateAfterAbortRunsImmediately(t *testing.T) {
	s := Aborted(context.Canceled)

	fired := false
	remove := s.OnActivate(func(cause error) {
		fired = true
		assert.ErrorIs(t, cause, context.Canceled)
	})
	remove()

	assert.True(t, fired)
	assert.Equal(t, 0, s.ListenerCount())
}

func TestSignal_Nil(t *testing.T) {
	var s *Signal
	assert.False(t, s.IsActive())
	assert.Nil(t, s.Done())
	assert.NoError(t, s.Err())
	assert.Equal(t, 0, s.ListenerCount())
	s.OnActivate(func(error) { t.Error("nil signal never fires") })()
}

func TestFromContext(t *testing.T) {
	t.Run("background yields nil signal", func(t *testing.T) {
		s, stop := FromContext(context.Background())
		defer stop()
		assert.Nil(t, s)
	})

	t.Run("already cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancelCause(context.Background())
		cause := errors.New("caller gave up")
		cancel(cause)

		s, stop := FromContext(ctx)
		defer stop()
		require.True(t, s.IsActive())
		assert.ErrorIs(t, s.Err(), cause)
	})

	t.Run("cancel propagates", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		s, stop := FromContext(ctx)
		defer stop()

		cancel()
		select {
		case <-s.Done():
		case <-time.After(time.Second):
			t.Fatal("signal did not follow context cancellation")
		}
		assert.ErrorIs(t, s.Err(), context.Canceled)
	})

	t.Run("stop detaches", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		s, stop := FromContext(ctx)
		stop()
		cancel()

		time.Sleep(10 * time.Millisecond)
		assert.False(t, s.IsActive())
	})
}
