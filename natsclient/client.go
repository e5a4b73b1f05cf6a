// Package natsclient manages the NATS connection and JetStream context used
// by the history store.
package natsclient

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Manu-world/flight-tracking-service/errors"
)

// Client wraps a NATS connection with JetStream access.
type Client struct {
	url    string
	logger *slog.Logger

	name          string
	timeout       time.Duration
	drainTimeout  time.Duration
	reconnectWait time.Duration
	maxReconnects int
	username      string
	password      string
	token         string

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream

	closed atomic.Bool
}

// Option configures a Client.
type Option func(*Client) error

// WithName sets the client connection name.
func WithName(name string) Option {
	return func(c *Client) error {
		c.name = name
		return nil
	}
}

// WithTimeout sets the connect timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithCredentials sets username/password authentication.
func WithCredentials(username, password string) Option {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken sets token authentication.
func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// NewClient creates a NATS client. Connect must be called before use.
func NewClient(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig,
			"Client", "NewClient", "validate NATS URL")
	}

	c := &Client{
		url:           url,
		logger:        slog.Default(),
		name:          "flight-tracking-service",
		timeout:       5 * time.Second,
		drainTimeout:  10 * time.Second,
		reconnectWait: 2 * time.Second,
		maxReconnects: -1,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapFatal(err, "Client", "NewClient", "apply option")
		}
	}
	return c, nil
}

// Connect establishes the NATS connection and JetStream context.
func (c *Client) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name(c.name),
		nats.Timeout(c.timeout),
		nats.ReconnectWait(c.reconnectWait),
		nats.MaxReconnects(c.maxReconnects),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("NATS disconnected", "component", "natsclient", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS reconnected", "component", "natsclient", "url", nc.ConnectedUrl())
		}),
	}
	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}

	connected := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		if err != nil {
			connected <- err
			return
		}
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			connected <- err
			return
		}
		c.mu.Lock()
		c.conn = conn
		c.js = js
		c.mu.Unlock()
		connected <- nil
	}()

	select {
	case <-ctx.Done():
		return errors.WrapTransient(errors.ErrConnectionTimeout,
			"Client", "Connect", "connect to NATS")
	case err := <-connected:
		if err != nil {
			return errors.WrapTransient(err, "Client", "Connect", "connect to NATS")
		}
	}

	c.logger.Info("connected to NATS", "component", "natsclient", "url", c.url)
	return nil
}

// Close drains the connection. Safe to call more than once.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.js = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return errors.Wrap(err, "Client", "Close", "drain connection")
	}
	return nil
}

// IsHealthy reports whether the connection is established.
func (c *Client) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, errors.WrapTransient(errors.ErrConnectionLost,
			"Client", "JetStream", "get JetStream context")
	}
	return c.js, nil
}

// EnsureKeyValueBucket returns the named KV bucket, creating it when absent.
// A concurrent create by another instance is not an error.
func (c *Client) EnsureKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	bucket, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		return bucket, nil
	}

	bucket, err = js.CreateKeyValue(ctx, cfg)
	if err != nil {
		if isAlreadyExists(err) {
			return js.KeyValue(ctx, cfg.Bucket)
		}
		return nil, errors.WrapTransient(err, "Client", "EnsureKeyValueBucket",
			fmt.Sprintf("create bucket %s", cfg.Bucket))
	}

	c.logger.Info("created KV bucket", "component", "natsclient", "bucket", cfg.Bucket)
	return bucket, nil
}

func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "already in use")
}
