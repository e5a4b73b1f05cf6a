// Command flight-tracking-service serves live flight telemetry: merged
// position and metadata streams over SSE and websocket, one-shot REST
// queries, and per-user search history.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Manu-world/flight-tracking-service/auth"
	"github.com/Manu-world/flight-tracking-service/config"
	"github.com/Manu-world/flight-tracking-service/gateway"
	"github.com/Manu-world/flight-tracking-service/history"
	"github.com/Manu-world/flight-tracking-service/metric"
	"github.com/Manu-world/flight-tracking-service/natsclient"
	"github.com/Manu-world/flight-tracking-service/stream"
	"github.com/Manu-world/flight-tracking-service/upstream"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := metric.NewRegistry()
	streamMetrics, err := stream.NewMetrics(metrics)
	if err != nil {
		return err
	}

	// One shared outbound limiter keeps the two upstream feeds inside the
	// provider's request budget.
	limiter := rate.NewLimiter(
		rate.Limit(float64(cfg.RateLimit.Requests)/cfg.RateLimit.Window.Std().Seconds()),
		cfg.RateLimit.Requests)

	positionsClient := upstream.NewPositionsClient(upstream.PositionsConfig{
		BaseURL:    cfg.Positions.BaseURL,
		APIKey:     cfg.Positions.APIKey,
		APIVersion: cfg.Positions.APIVersion,
		Limiter:    limiter,
		Logger:     logger,
	})
	infoClient := upstream.NewInfoClient(upstream.InfoConfig{
		Endpoint:  cfg.FlightInfo.Endpoint,
		AccessKey: cfg.FlightInfo.AccessKey,
		Limiter:   limiter,
		Logger:    logger,
	})

	gate := auth.NewGate(auth.Config{
		VerifyURL: cfg.Auth.VerifyURL,
		Logger:    logger,
	})

	store, natsConn, err := openHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if natsConn != nil {
		defer func() {
			if err := natsConn.Close(); err != nil {
				logger.Warn("NATS close failed", "component", "main", "error", err)
			}
		}()
	}

	server := gateway.NewServer(gateway.Config{
		Addr:             cfg.Server.Addr(),
		CORSOrigins:      cfg.Server.CORSOrigins,
		PositionInterval: cfg.Stream.PositionInterval.Std(),
		InfoInterval:     cfg.Stream.InfoInterval.Std(),
		ErrorPause:       cfg.Stream.ErrorPause.Std(),
		ShutdownTimeout:  cfg.Server.ShutdownTimeout.Std(),
	}, gateway.Deps{
		Gate:           gate,
		Positions:      stream.NewPositionPoller(positionsClient, nil, logger, streamMetrics),
		Info:           stream.NewInfoPoller(infoClient, positionsClient, nil, logger, streamMetrics),
		Metrics:        streamMetrics,
		Store:          store,
		MetricsHandler: metrics.Handler(),
		Logger:         logger,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(ctx) })

	logger.Info("flight tracking service started",
		"component", "main", "addr", cfg.Server.Addr(), "history", store != nil)
	return g.Wait()
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Logging.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// openHistory connects the optional search-history store. A disabled store
// returns nils: the gateway then serves without persistence.
func openHistory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (history.Store, *natsclient.Client, error) {
	if !cfg.NATS.Enabled {
		return nil, nil, nil
	}

	opts := []natsclient.Option{natsclient.WithLogger(logger)}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	client, err := natsclient.NewClient(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return nil, nil, err
	}

	bucket, err := client.EnsureKeyValueBucket(connectCtx, jetstreamBucketConfig(cfg.NATS.Bucket))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	store, err := history.NewKVStore(history.KVStoreConfig{Bucket: bucket, Logger: logger})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, client, nil
}

func jetstreamBucketConfig(name string) jetstream.KeyValueConfig {
	return jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "per-user flight search history",
		History:     1,
	}
}
