package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/resilient-api-client/pkg/apierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:   maxRetries,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

func serverError() error {
	return apierror.FromStatus(http.StatusServiceUnavailable, "unavailable", nil)
}

func TestDo_Success(t *testing.T) {
	calls := 0
	val, err := Do(context.Background(), fastConfig(3), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	cfg := fastConfig(4)

	for n := 0; n <= cfg.MaxRetries; n++ {
		t.Run(fmt.Sprintf("fail_%d_times", n), func(t *testing.T) {
			calls := 0
			var delays []time.Duration

			val, err := Do(context.Background(), cfg, func(context.Context) (int, error) {
				calls++
				if calls <= n {
					return 0, serverError()
				}
				return 42, nil
			}, WithNotify(func(a Attempt) {
				delays = append(delays, a.Delay)
			}))

			require.NoError(t, err)
			assert.Equal(t, 42, val)
			assert.Equal(t, n+1, calls)
			require.Len(t, delays, n)
			for _, d := range delays {
				assert.LessOrEqual(t, d, cfg.MaxDelay)
			}
		})
	}
}

func TestDo_ClientErrorNoRetry(t *testing.T) {
	clientErr := apierror.FromStatus(http.StatusNotFound, "not found", nil)

	calls := 0
	delays := 0
	start := time.Now()
	_, err := Do(context.Background(), Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second},
		func(context.Context) (any, error) {
			calls++
			return nil, clientErr
		}, WithNotify(func(Attempt) { delays++ }))

	assert.Same(t, clientErr, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, delays)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDo_ValidationNoRetry(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(3), func(context.Context) (any, error) {
		calls++
		return nil, apierror.Validation(errors.New("missing field id"))
	})

	assert.ErrorIs(t, err, apierror.ErrValidation)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustedReturnsLastErrorUnchanged(t *testing.T) {
	var last error
	calls := 0

	_, err := Do(context.Background(), fastConfig(2), func(context.Context) (any, error) {
		calls++
		last = apierror.FromStatus(http.StatusBadGateway, fmt.Sprintf("attempt %d", calls), nil)
		return nil, last
	})

	assert.Equal(t, 3, calls)
	assert.Same(t, last, err)
	assert.Equal(t, apierror.ClassServer, apierror.ClassOf(err))
}

func TestDo_ZeroRetries(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(0), func(context.Context) (any, error) {
		calls++
		return nil, serverError()
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_TransportErrorsRetried(t *testing.T) {
	calls := 0
	err := Run(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	cfg := Config{MaxRetries: 5, InitialDelay: time.Minute, MaxDelay: time.Minute}

	_, err := Do(ctx, cfg, func(context.Context) (any, error) {
		calls++
		return nil, serverError()
	}, WithNotify(func(Attempt) { cancel() }))

	assert.ErrorIs(t, err, apierror.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_OperationObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, fastConfig(3), func(ctx context.Context) (any, error) {
		calls++
		// transport layers surface the abort as an ordinary error
		return nil, fmt.Errorf("dial: %w", errors.New("operation was canceled"))
	})

	assert.ErrorIs(t, err, apierror.ErrCancelled)
	assert.Equal(t, 1, calls, "first attempt runs, abort is never retried")
}

func TestDo_CancellationErrorPropagatesUnchanged(t *testing.T) {
	cancelled := apierror.Cancelled(context.DeadlineExceeded)
	calls := 0

	_, err := Do(context.Background(), fastConfig(3), func(context.Context) (any, error) {
		calls++
		return nil, cancelled
	})

	assert.Same(t, cancelled, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetryAfterHintCapped(t *testing.T) {
	cfg := fastConfig(1)
	rateLimited := &apierror.Error{
		StatusCode: http.StatusTooManyRequests,
		Class:      apierror.ClassRateLimit,
		RetryAfter: time.Hour,
	}

	var delays []time.Duration
	calls := 0
	_, err := Do(context.Background(), cfg, func(context.Context) (any, error) {
		calls++
		if calls == 1 {
			return nil, rateLimited
		}
		return "ok", nil
	}, WithNotify(func(a Attempt) { delays = append(delays, a.Delay) }))

	require.NoError(t, err)
	require.Len(t, delays, 1)
	assert.Equal(t, cfg.MaxDelay, delays[0])
}

func TestDo_CustomClassifier(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(3), func(context.Context) (any, error) {
		calls++
		return nil, serverError()
	}, WithClassifier(func(error) bool { return false }))

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_NoOverlappingAttempts(t *testing.T) {
	running := 0
	calls := 0

	_ = Run(context.Background(), fastConfig(4), func(context.Context) error {
		running++
		defer func() { running-- }()
		if running != 1 {
			t.Errorf("attempts overlap: %d running", running)
		}
		calls++
		return serverError()
	})

	assert.Equal(t, 5, calls)
}

func TestWrap(t *testing.T) {
	calls := 0
	op := Wrap(fastConfig(2), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, serverError()
		}
		return calls, nil
	})

	val, err := op(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, val)
}
