package stream

import "time"

// Clock abstracts wall time and interval waits so the coordinator's due-time
// computation and termination behavior are testable without real sleeps.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }
