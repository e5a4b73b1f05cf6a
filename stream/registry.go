package stream

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Subscription is one registry entry: a live transport connection and the
// cancellation scope of its coordinator. Entries are never shared, even
// across identical targets; each subscriber drives its own upstream polling.
type Subscription struct {
	ID  string
	Key string

	cancel context.CancelFunc
	once   sync.Once
}

// Registry tracks live subscriptions. Open creates an entry per connection;
// Close is idempotent and safe from both failure-path cleanup and normal
// teardown.
type Registry struct {
	logger  *slog.Logger
	metrics *Metrics

	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewRegistry creates an empty subscription registry.
func NewRegistry(logger *slog.Logger, metrics *Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		metrics: metrics,
		subs:    make(map[string]*Subscription),
	}
}

// Open registers a new subscription under key and returns it together with
// the context that scopes its coordinator. Cancelling the parent context or
// closing the subscription tears the coordinator down.
func (r *Registry) Open(parent context.Context, key string) (*Subscription, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	sub := &Subscription{
		ID:     uuid.NewString(),
		Key:    key,
		cancel: cancel,
	}

	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.mu.Unlock()

	r.metrics.SubscriptionOpened()
	r.logger.Info("subscription opened",
		"component", "stream", "subscription_id", sub.ID, "target", key)
	return sub, ctx
}

// Close cancels the subscription's coordinator and removes the entry.
// Subsequent calls are no-ops.
func (r *Registry) Close(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.once.Do(func() {
		sub.cancel()

		r.mu.Lock()
		delete(r.subs, sub.ID)
		r.mu.Unlock()

		r.metrics.SubscriptionClosed()
		r.logger.Info("subscription closed",
			"component", "stream", "subscription_id", sub.ID, "target", sub.Key)
	})
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// CloseAll tears down every live subscription, used at server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	subs := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	for _, sub := range subs {
		r.Close(sub)
	}
}
