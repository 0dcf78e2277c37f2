package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/peakstream/internal/adapter/hiveengine"
	"github.com/pscheid92/peakstream/internal/adapter/httpserver"
	"github.com/pscheid92/peakstream/internal/adapter/metrics"
	"github.com/pscheid92/peakstream/internal/adapter/postgres"
	"github.com/pscheid92/peakstream/internal/adapter/price"
	"github.com/pscheid92/peakstream/internal/adapter/redis"
	"github.com/pscheid92/peakstream/internal/adapter/websocket"
	"github.com/pscheid92/peakstream/internal/app"
	"github.com/pscheid92/peakstream/internal/platform/config"
	"github.com/pscheid92/peakstream/internal/platform/logging"
	"github.com/pscheid92/peakstream/internal/platform/version"
)

const shutdownTimeout = 10 * time.Second

func runGracefulShutdown(srv *httpserver.Server, feed *websocket.Feed, streams *app.StreamManager, cancel context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		feed.Stop()
		streams.Shutdown()
		cancel()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, m *metrics.StorageMetrics) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, m)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config, hooks ...goredis.Hook) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL, hooks...)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting",
		"env", cfg.AppEnv,
		"port", cfg.Port,
		"version", version.Version,
		"payer", cfg.PayerAccount,
		"symbol", cfg.TokenSymbol,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := metrics.NewRegistry()
	upstreamMetrics := metrics.NewUpstreamMetrics(reg)
	paymentMetrics := metrics.NewPaymentMetrics(reg)
	storageMetrics := metrics.NewStorageMetrics(reg)

	ledger := hiveengine.New(hiveengine.Config{
		RPCURL:       cfg.HiveEngineRPCURL,
		HistoryURL:   cfg.HiveEngineHistoryURL,
		BroadcastURL: cfg.BroadcastURL,
		Symbol:       cfg.TokenSymbol,
		Precision:    cfg.TokenPrecision,
		Timeout:      cfg.LedgerTimeout,
	}, hiveengine.WithMetrics(upstreamMetrics))

	var (
		deps        httpserver.Deps
		streamOpts  = []app.StreamOption{app.WithStreamObserver(paymentMetrics)}
		boostOpts   = []app.BoostOption{app.WithBoostObserver(paymentMetrics)}
		priceOpts   = []price.Option{price.WithPriceMetrics(metrics.NewPriceMetrics(reg)), price.WithUpstreamMetrics(upstreamMetrics)}
		redisClient *goredis.Client
		priceCache  *redis.PriceCache
	)

	// Postgres and Redis are optional; without them receipts are only on chain
	// and sessions are only visible to this process.
	if cfg.DatabaseURL != "" {
		pool := setupDB(cfg, storageMetrics)
		defer pool.Close()

		receipts := postgres.NewReceiptRepo(pool)
		streamOpts = append(streamOpts, app.WithSessionRecorder(receipts))
		boostOpts = append(boostOpts, app.WithBoostRecorder(receipts))
		deps.BoostArchive = receipts
		deps.SessionArchive = receipts
		deps.HealthChecks = append(deps.HealthChecks, httpserver.HealthCheck{Name: "postgres", Check: pool.Ping})
	}

	if cfg.RedisURL != "" {
		redisClient = setupRedis(ctx, cfg, redis.NewMetricsHook(storageMetrics), redis.NewCircuitBreakerHook(upstreamMetrics))
		defer func() { _ = redisClient.Close() }()

		mirror := redis.NewSessionMirror(redisClient, 0)
		streamOpts = append(streamOpts, app.WithSessionRecorder(mirror))
		deps.Mirror = mirror

		priceCache = redis.NewPriceCache(redisClient)
		priceOpts = append(priceOpts, price.WithSharedCache(priceCache))
		deps.HealthChecks = append(deps.HealthChecks, httpserver.HealthCheck{
			Name:     "redis",
			Check:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			Optional: true,
		})
	}

	deps.HealthChecks = append(deps.HealthChecks, httpserver.HealthCheck{
		Name: "ledger",
		Check: func(ctx context.Context) error {
			_, err := ledger.Balance(ctx, cfg.PayerAccount)
			return err
		},
		Optional: true,
	})

	oracle := price.NewOracle(price.Config{
		Symbol:       cfg.TokenSymbol,
		HivePriceURL: cfg.HivePriceURL,
		FXRatesURL:   cfg.FXRatesURL,
		TTL:          cfg.PriceCacheTTL,
		Timeout:      cfg.LedgerTimeout,
	}, ledger, clock, priceOpts...)

	if redisClient != nil {
		go redis.NewPriceInvalidationSubscriber(redisClient, oracle).Start(ctx)
		origin := instanceName()
		deps.RefreshPrices = func(ctx context.Context) error {
			return redis.PublishPriceInvalidation(ctx, redisClient, priceCache, origin)
		}
	} else {
		deps.RefreshPrices = func(context.Context) error {
			oracle.Invalidate()
			return nil
		}
	}

	streams := app.NewStreamManager(ledger, clock, app.StreamConfig{
		Payer:         cfg.PayerAccount,
		Precision:     cfg.TokenPrecision,
		LedgerTimeout: cfg.LedgerTimeout,
	}, streamOpts...)

	boosts := app.NewBoostService(ledger, clock, app.BoostConfig{
		Payer:     cfg.PayerAccount,
		Precision: cfg.TokenPrecision,
	}, boostOpts...)

	earnings := app.NewEarningsService(ledger, clock, app.EarningsConfig{
		Payer:        cfg.PayerAccount,
		HistoryLimit: cfg.HistoryLimit,
	})

	feed := websocket.NewFeed(streams, clock, cfg.FeedInterval,
		websocket.WithFeedMetrics(metrics.NewFeedMetrics(reg)),
		websocket.WithCheckOrigin(websocket.NewCheckOrigin(cfg.AppURL, !cfg.IsProduction(), cfg.FeedAllowedOrigins...)),
	)

	deps.Streams = streams
	deps.Boosts = boosts
	deps.Earnings = earnings
	deps.Prices = oracle
	deps.Feed = feed
	deps.Metrics = metrics.NewHTTPMetrics(reg)
	deps.MetricsHandler = metrics.Handler(reg)
	deps.Clock = clock

	srv := httpserver.NewServer(cfg, deps)

	done := runGracefulShutdown(srv, feed, streams, cancel)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
