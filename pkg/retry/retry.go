// Package retry provides bounded exponential backoff for upstream calls.
//
// Failures are classified by the errors package: only transient and
// rate-limited failures are retried, and a rate-limited failure may carry an
// upstream retry-after hint that overrides the computed backoff. Everything
// else surfaces to the caller on the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	flighterrors "github.com/Manu-world/flight-tracking-service/errors"
)

var (
	// Thread-safe random source for jitter.
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// NonRetryableError marks errors that must not be retried regardless of
// classification.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to indicate it should not be retried.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks if an error is marked as non-retryable.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config provides retry configuration. The wait before attempt n+1 is
// min(MaxDelay, InitialDelay * Multiplier^(n-1)), clamped below by MinDelay.
type Config struct {
	MaxAttempts  int           // Total attempts including the first (0 = run once)
	InitialDelay time.Duration // Backoff base
	MinDelay     time.Duration // Lower clamp on the wait window (0 = none)
	MaxDelay     time.Duration // Upper clamp on the wait window
	Multiplier   float64       // Backoff multiplier (typically 2.0)
	AddJitter    bool          // Add randomness to prevent thundering herd
}

// DataFetch returns the retry configuration for position and flight-info
// polls: simple doubling from one second, three attempts.
func DataFetch() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Identity returns the retry configuration for identity verification calls:
// exponential base of one second clamped to a [4s, 10s] window, three
// attempts, no jitter.
func Identity() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MinDelay:     4 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		AddJitter:    false,
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 1 * time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 8 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}
}

func (cfg Config) validate() error {
	if cfg.InitialDelay < 0 || cfg.MinDelay < 0 || cfg.MaxDelay < 0 {
		return errors.New("retry: delays cannot be negative")
	}
	if cfg.Multiplier < 0 {
		return errors.New("retry: Multiplier cannot be negative")
	}
	if cfg.MaxDelay > 0 && cfg.MinDelay > cfg.MaxDelay {
		return errors.New("retry: MinDelay must be <= MaxDelay")
	}
	return nil
}

// clamp bounds a computed delay to the configured [MinDelay, MaxDelay] window.
func (cfg Config) clamp(d time.Duration) time.Duration {
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if d < cfg.MinDelay {
		d = cfg.MinDelay
	}
	return d
}

// Do executes fn with exponential backoff. A failure is retried only when
// the errors package classifies it as retryable and it is not wrapped in
// NonRetryable. Exhausting the attempt budget surfaces the last failure.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	cfg.applyDefaults()

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsNonRetryable(err) || !flighterrors.IsRetryable(err) {
			return err
		}

		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt, ctx.Err())
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := cfg.clamp(delay)

		// An upstream retry-after hint overrides the computed backoff,
		// bounded by the window ceiling.
		if hint := flighterrors.RetryAfter(err); hint > 0 {
			sleep = hint
			if sleep > cfg.MaxDelay {
				sleep = cfg.MaxDelay
			}
		} else if cfg.AddJitter {
			randMu.Lock()
			jitter := time.Duration(randSource.Int63n(int64(sleep/4) + 1))
			randMu.Unlock()
			sleep += jitter
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}

		next := float64(delay) * cfg.Multiplier
		if next > float64(cfg.MaxDelay) {
			delay = cfg.MaxDelay
		} else {
			delay = time.Duration(next)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w",
		flighterrors.ErrMaxRetriesExceeded, cfg.MaxAttempts, lastErr)
}

// DoWithResult executes fn with retry and returns both result and error.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
