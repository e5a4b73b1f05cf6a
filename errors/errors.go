// Package errors provides the failure taxonomy shared by the upstream
// clients, the retry policy, and the streaming coordinator. Every failure
// that crosses a package boundary is classified so callers branch on an
// explicit kind rather than matching error strings.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure for retry and propagation decisions.
type Kind int

const (
	// KindTransient covers connection resets, timeouts and other failures
	// that are expected to clear on their own. Retried.
	KindTransient Kind = iota
	// KindRateLimited means the upstream asked us to slow down. Retried,
	// honoring any provided retry-after.
	KindRateLimited
	// KindAuthInvalid means the credential was rejected. Terminal, never
	// retried.
	KindAuthInvalid
	// KindNotFound means the target does not exist upstream. Not an error
	// for pollers; propagated as an empty result.
	KindNotFound
	// KindMalformed means the upstream response could not be decoded.
	// Terminal for the individual call; per-record failures are dropped
	// without failing the batch.
	KindMalformed
	// KindFatal covers unrecoverable local conditions such as invalid
	// configuration.
	KindFatal
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindNotFound:
		return "not_found"
	case KindMalformed:
		return "malformed"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions.
var (
	ErrStreamClosed       = errors.New("stream closed")
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrTargetNotFound     = errors.New("target not found")

	ErrConnectionTimeout = errors.New("connection timeout")
	ErrConnectionLost    = errors.New("connection lost")
	ErrRateLimited       = errors.New("rate limited")

	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrMissingToken       = errors.New("missing credential")
	ErrAuthUnavailable    = errors.New("authentication service unavailable")
	ErrMalformedResponse  = errors.New("malformed upstream response")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrMissingConfig      = errors.New("missing required configuration")
	ErrStoreUnavailable   = errors.New("history store unavailable")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// ClassifiedError wraps an error with its kind and the component/operation
// that produced it.
type ClassifiedError struct {
	Kind      Kind
	Err       error
	Component string
	Operation string

	// RetryAfter carries an upstream-provided backoff hint for
	// KindRateLimited failures. Zero means none was provided.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// ClassifyKind returns the kind recorded on err, or KindTransient when the
// error carries no classification. Unknown failures default to transient so
// a single odd poll never kills a subscription.
func ClassifyKind(err error) Kind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, ErrInvalidToken) {
		return KindAuthInvalid
	}
	if errors.Is(err, ErrTargetNotFound) {
		return KindNotFound
	}
	if errors.Is(err, ErrMalformedResponse) {
		return KindMalformed
	}
	if errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrMissingConfig) {
		return KindFatal
	}
	return KindTransient
}

// IsRetryable reports whether a failure may be retried: transient and
// rate-limited failures only.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	k := ClassifyKind(err)
	return k == KindTransient || k == KindRateLimited
}

// RetryAfter returns the upstream-provided backoff hint, if any.
func RetryAfter(err error) time.Duration {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.RetryAfter
	}
	return 0
}

// Wrap creates a standardized error with context following the pattern
// "component.operation: action failed: %w".
func Wrap(err error, component, operation, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, operation, action, err)
}

func newClassified(kind Kind, err error, component, operation, action string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{
		Kind:      kind,
		Err:       Wrap(err, component, operation, action),
		Component: component,
		Operation: operation,
	}
}

// WrapTransient wraps an error as transient with context.
func WrapTransient(err error, component, operation, action string) error {
	return newClassified(KindTransient, err, component, operation, action)
}

// WrapRateLimited wraps an error as rate-limited, carrying the upstream
// retry-after hint when one was provided.
func WrapRateLimited(err error, retryAfter time.Duration, component, operation, action string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{
		Kind:       KindRateLimited,
		Err:        Wrap(err, component, operation, action),
		Component:  component,
		Operation:  operation,
		RetryAfter: retryAfter,
	}
}

// WrapAuthInvalid wraps an error as a terminal credential rejection.
func WrapAuthInvalid(err error, component, operation, action string) error {
	return newClassified(KindAuthInvalid, err, component, operation, action)
}

// WrapNotFound wraps an error as a missing-target signal.
func WrapNotFound(err error, component, operation, action string) error {
	return newClassified(KindNotFound, err, component, operation, action)
}

// WrapMalformed wraps an error as an undecodable-response failure.
func WrapMalformed(err error, component, operation, action string) error {
	return newClassified(KindMalformed, err, component, operation, action)
}

// WrapFatal wraps an error as unrecoverable.
func WrapFatal(err error, component, operation, action string) error {
	return newClassified(KindFatal, err, component, operation, action)
}

// As is a convenience re-export so callers don't need both this package and
// the standard library errors package for unwrapping.
func As(err error, target any) bool { return errors.As(err, target) }

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// New returns an error that formats as the given text.
func New(text string) error { return errors.New(text) }
