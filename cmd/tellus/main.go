package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"tellus/internal/aggregate"
	aggmetrics "tellus/internal/aggregate/metrics"
	"tellus/internal/analytics"
	"tellus/internal/audit"
	"tellus/internal/cache"
	cachemetrics "tellus/internal/cache/metrics"
	cachestore "tellus/internal/cache/store"
	"tellus/internal/indicator"
	"tellus/internal/platform/config"
	"tellus/internal/platform/kafka"
	"tellus/internal/platform/logger"
	redisplatform "tellus/internal/platform/redis"
	"tellus/internal/provider"
	"tellus/internal/ratelimit"
	rlmetrics "tellus/internal/ratelimit/metrics"
	rlstore "tellus/internal/ratelimit/store"
	"tellus/internal/retry"
	"tellus/pkg/requestcontext"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tellus",
	Short: "Multi-source indicator aggregation and analytics",
	Long: "Tellus fetches economic, health, agricultural, and climate indicators\n" +
		"from public data providers, normalizes and caches them, and computes\n" +
		"deterministic trend, correlation, and summary insights.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var flagTimeout time.Duration

func init() {
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 0, "overall resolution deadline (overrides TELLUS_RESOLVE_TIMEOUT)")
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(trendCmd)
	rootCmd.AddCommand(correlateCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(catalogCmd)
}

// app bundles the wired core for one command invocation. Business logic lives
// in the internal packages; commands only parse flags and render results.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	catalog   *indicator.Catalog
	resolver  *aggregate.Service
	analytics *analytics.Engine
	closers   []func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flagTimeout > 0 {
		cfg.ResolveTimeout = flagTimeout
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	a := &app{cfg: cfg, logger: log, catalog: indicator.Default()}

	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		a.closers = append(a.closers, func(context.Context) error { return redisClient.Close() })
	}

	entryStore, err := a.buildEntryStore(ctx, redisClient)
	if err != nil {
		return nil, err
	}

	var windowStore ratelimit.WindowStore = rlstore.NewInMemoryWindowStore()
	if redisClient != nil {
		windowStore = rlstore.NewRedisWindowStore(redisClient.Client)
	}
	limiter, err := ratelimit.New(windowStore, cfg.Rates,
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(rlmetrics.New()),
	)
	if err != nil {
		return nil, fmt.Errorf("build rate limiter: %w", err)
	}

	retryPolicy, err := retry.New(cfg.Retry, retry.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("build retry policy: %w", err)
	}

	cacheService, err := cache.New(entryStore, cache.NewTTLPolicy(cfg.TTL),
		cache.WithLogger(log),
		cache.WithMetrics(cachemetrics.New()),
	)
	if err != nil {
		return nil, fmt.Errorf("build cache: %w", err)
	}

	registry, err := provider.NewDefaultRegistry(cfg.Providers, a.catalog, limiter, log)
	if err != nil {
		return nil, fmt.Errorf("build provider registry: %w", err)
	}

	opts := []aggregate.Option{
		aggregate.WithLogger(log),
		aggregate.WithMetrics(aggmetrics.New()),
		aggregate.WithResolveTimeout(cfg.ResolveTimeout),
	}
	publisher, err := a.buildAuditPublisher(ctx)
	if err != nil {
		return nil, err
	}
	if publisher != nil {
		opts = append(opts, aggregate.WithAuditPublisher(publisher))
	}

	a.resolver, err = aggregate.New(a.catalog, registry, cacheService, retryPolicy, opts...)
	if err != nil {
		return nil, fmt.Errorf("build aggregator: %w", err)
	}

	a.analytics = analytics.New(analytics.WithLogger(log))
	return a, nil
}

// buildEntryStore picks the cache backend: postgres when configured, then
// redis, then process-local memory.
func (a *app) buildEntryStore(ctx context.Context, redisClient *redisplatform.Client) (cachestore.Store, error) {
	if a.cfg.Postgres.URL != "" {
		pool, err := pgxpool.New(ctx, a.cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error {
			pool.Close()
			return nil
		})
		pgStore := cachestore.NewPostgresStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pgStore, nil
	}
	if redisClient != nil {
		return cachestore.NewRedisStore(redisClient.Client), nil
	}
	return cachestore.NewInMemoryStore(), nil
}

func (a *app) buildAuditPublisher(ctx context.Context) (*audit.Publisher, error) {
	client, err := kafka.New(a.cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	if client == nil {
		return nil, nil
	}

	if err := audit.EnsureTopic(ctx, client, a.cfg.Kafka.Topic, a.cfg.Kafka.Partitions, a.cfg.Kafka.ReplicationFactor); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure audit topic: %w", err)
	}
	publisher, err := audit.NewPublisher(client, a.cfg.Kafka.Topic, audit.WithLogger(a.logger))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("build audit publisher: %w", err)
	}
	a.closers = append(a.closers, publisher.Close)
	return publisher, nil
}

// close releases resources in reverse construction order.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown step failed", "error", err)
		}
	}
}

// runWithApp wires the core, stamps a request ID, and tears everything down
// after the command body returns. Interrupts cancel the context so in-flight
// fetches abandon cleanly.
func runWithApp(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		ctx = requestcontext.WithRequestID(ctx, uuid.NewString())
		return fn(ctx, a)
	}
}
