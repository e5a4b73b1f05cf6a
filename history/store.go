// Package history persists each user's flight search history: one document
// per user, one entry per flight number, most recent first on retrieval.
package history

import (
	"context"
	"time"
)

// Entry is one searched flight in a user's history.
type Entry struct {
	FlightNumber string    `json:"flight_number"`
	SearchedAt   time.Time `json:"searched_at"`
}

// Store is the persistence collaborator of the transport layer. Record is
// upsert-by-flight-number: searching the same flight again refreshes its
// timestamp instead of duplicating the entry. Implementations must be safe
// for concurrent use; callers guard against a slow store with a timeout so
// frame emission is never blocked on persistence.
type Store interface {
	Record(ctx context.Context, userID, flightNumber string) error
	List(ctx context.Context, userID string) ([]Entry, error)
}
