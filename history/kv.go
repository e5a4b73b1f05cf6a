package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Manu-world/flight-tracking-service/errors"
	"github.com/Manu-world/flight-tracking-service/pkg/retry"
)

// Bucket is the slice of the JetStream KV API the store needs. Satisfied by
// jetstream.KeyValue.
type Bucket interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
}

// document is the stored per-user history value.
type document struct {
	UserID  string  `json:"user_id"`
	Flights []Entry `json:"flights"`
}

// KVStore persists search history in a JetStream KV bucket, one key per
// user. Writes are compare-and-set with bounded retry so concurrent
// connections from the same user don't lose entries.
type KVStore struct {
	bucket  Bucket
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// KVStoreConfig configures a KVStore.
type KVStoreConfig struct {
	Bucket Bucket
	// Timeout bounds each Record/List call. Zero selects 5s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewKVStore creates a history store over the given bucket.
func NewKVStore(cfg KVStoreConfig) (*KVStore, error) {
	if cfg.Bucket == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig,
			"KVStore", "NewKVStore", "validate bucket")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &KVStore{
		bucket:  cfg.Bucket,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		now:     time.Now,
	}, nil
}

// casRetry is the policy for compare-and-set conflicts: fast, bounded.
func casRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Record upserts flightNumber into the user's history. An existing entry for
// the same flight gets its timestamp refreshed and moves to the front of
// List results.
func (s *KVStore) Record(ctx context.Context, userID, flightNumber string) error {
	if userID == "" || flightNumber == "" {
		return errors.WrapFatal(
			fmt.Errorf("user %q flight %q", userID, flightNumber),
			"KVStore", "Record", "validate arguments")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := userKey(userID)
	err := retry.Do(ctx, casRetry(), func() error {
		doc := document{UserID: userID}
		var revision uint64

		entry, err := s.bucket.Get(ctx, key)
		switch {
		case err == nil:
			if uerr := json.Unmarshal(entry.Value(), &doc); uerr != nil {
				// Corrupt document: start over rather than failing the write.
				s.logger.Warn("resetting undecodable history document",
					"component", "history", "user_id", userID, "error", uerr)
				doc = document{UserID: userID}
			}
			revision = entry.Revision()
		case isNotFound(err):
			revision = 0
		default:
			return err
		}

		upsert(&doc, flightNumber, s.now().UTC())

		value, err := json.Marshal(doc)
		if err != nil {
			return retry.NonRetryable(err)
		}

		if revision == 0 {
			_, err = s.bucket.Create(ctx, key, value)
		} else {
			_, err = s.bucket.Update(ctx, key, value, revision)
		}
		return err
	})
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err),
			"KVStore", "Record", "persist history entry")
	}
	return nil
}

// List returns the user's history, most recently searched first. A user with
// no history gets an empty slice, not an error.
func (s *KVStore) List(ctx context.Context, userID string) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entry, err := s.bucket.Get(ctx, userKey(userID))
	if err != nil {
		if isNotFound(err) {
			return []Entry{}, nil
		}
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err),
			"KVStore", "List", "read history document")
	}

	var doc document
	if err := json.Unmarshal(entry.Value(), &doc); err != nil {
		return nil, errors.WrapMalformed(err, "KVStore", "List", "decode history document")
	}

	flights := append([]Entry(nil), doc.Flights...)
	sort.SliceStable(flights, func(i, j int) bool {
		return flights[i].SearchedAt.After(flights[j].SearchedAt)
	})
	return flights, nil
}

func upsert(doc *document, flightNumber string, at time.Time) {
	for i := range doc.Flights {
		if doc.Flights[i].FlightNumber == flightNumber {
			doc.Flights[i].SearchedAt = at
			return
		}
	}
	doc.Flights = append(doc.Flights, Entry{FlightNumber: flightNumber, SearchedAt: at})
}

// userKey maps a user ID onto the KV key character set.
func userKey(userID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, userID)
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return true
	}
	return strings.Contains(err.Error(), "key not found")
}
