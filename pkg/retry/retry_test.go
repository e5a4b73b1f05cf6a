package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flighterrors "github.com/Manu-world/flight-tracking-service/errors"
)

func transientErr(msg string) error {
	return flighterrors.WrapTransient(errors.New(msg), "test", "call", "upstream fetch")
}

func TestDo_TransientThenSuccess(t *testing.T) {
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return transientErr("connection reset")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_AuthInvalidNotRetried(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return flighterrors.WrapAuthInvalid(flighterrors.ErrInvalidToken, "gate", "Verify", "verify token")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, flighterrors.KindAuthInvalid, flighterrors.ClassifyKind(err))
}

func TestDo_NotFoundNotRetried(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return flighterrors.WrapNotFound(flighterrors.ErrTargetNotFound, "flightinfo", "Fetch", "lookup")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_ExhaustionSurfacesLastError(t *testing.T) {
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return transientErr("still down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, flighterrors.ErrMaxRetriesExceeded)
	assert.Contains(t, err.Error(), "still down")
}

func TestDo_BackoffWindow(t *testing.T) {
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MinDelay:     40 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}

	start := time.Now()
	_ = Do(context.Background(), cfg, func() error {
		return transientErr("down")
	})
	elapsed := time.Since(start)

	// Both waits clamp up to the 40ms floor: 40 + 40 = 80ms minimum.
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestDo_RetryAfterHintOverridesBackoff(t *testing.T) {
	cfg := Config{
		MaxAttempts:  2,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
		Multiplier:   2.0,
	}

	start := time.Now()
	attempts := 0
	_ = Do(context.Background(), cfg, func() error {
		attempts++
		return flighterrors.WrapRateLimited(
			flighterrors.ErrRateLimited, 60*time.Millisecond, "positions", "Fetch", "GET")
	})
	elapsed := time.Since(start)

	assert.Equal(t, 2, attempts)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		return transientErr("down")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.Less(t, attempts, 5)
}

func TestDo_NonRetryableMarker(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: 5 * time.Millisecond}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return NonRetryable(transientErr("looks transient but is not"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsNonRetryable(err))
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{}, func() error {
		attempts++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoWithResult(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: 5 * time.Millisecond}

	attempts := 0
	result, err := DoWithResult(context.Background(), cfg, func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", transientErr("not ready")
		}
		return "ok", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, attempts)
}

func TestIdentityConfig(t *testing.T) {
	cfg := Identity()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.InitialDelay)
	assert.Equal(t, 4*time.Second, cfg.MinDelay)
	assert.Equal(t, 10*time.Second, cfg.MaxDelay)
	assert.False(t, cfg.AddJitter)

	// First two waits clamp up to the window floor.
	assert.Equal(t, 4*time.Second, cfg.clamp(1*time.Second))
	assert.Equal(t, 4*time.Second, cfg.clamp(2*time.Second))
	assert.Equal(t, 10*time.Second, cfg.clamp(16*time.Second))
}

func TestDataFetchConfig(t *testing.T) {
	cfg := DataFetch()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.InitialDelay)
	assert.True(t, cfg.AddJitter)
}
