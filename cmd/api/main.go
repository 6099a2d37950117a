package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-fulfillment/internal/cart"
	"github.com/noah-isme/toko-fulfillment/internal/catalog"
	"github.com/noah-isme/toko-fulfillment/internal/common"
	"github.com/noah-isme/toko-fulfillment/internal/config"
	"github.com/noah-isme/toko-fulfillment/internal/events"
	"github.com/noah-isme/toko-fulfillment/internal/fulfillment"
	"github.com/noah-isme/toko-fulfillment/internal/health"
	"github.com/noah-isme/toko-fulfillment/internal/httpapi"
	"github.com/noah-isme/toko-fulfillment/internal/lock"
	"github.com/noah-isme/toko-fulfillment/internal/obs"
	"github.com/noah-isme/toko-fulfillment/internal/ratelimit"
	"github.com/noah-isme/toko-fulfillment/internal/repo"
	"github.com/noah-isme/toko-fulfillment/internal/resilience"
	"github.com/noah-isme/toko-fulfillment/migrations"
)

const serviceName = "toko-fulfillment"

func main() {
	cfg := config.MustLoad()
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Str("service", serviceName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		httpMetrics    *obs.HTTPMetrics
		breakerMetrics *resilience.Metrics
	)
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, nil, prometheus.DefaultRegisterer)
		obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)
		breakerMetrics = resilience.NewMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)
	}

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   serviceName,
			Endpoint:      cfg.TracingEndpoint,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			cfg.TracingEnabled = false
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.RunMigrations {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	catalogStore := repo.CatalogStore{DB: pool}
	cacheBreaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:      "catalog_cache",
		MinRequests: cfg.CacheBreakerMinReq,
		OpenFor:     cfg.CacheBreakerOpen,
		Metrics:     breakerMetrics,
		Logger:      logger.With().Str("component", "breaker").Logger(),
	})
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Store:   catalogStore,
		Cache:   catalog.NewCache(redisClient, cfg.CatalogCacheTTL, cfg.LockKeyPrefix+"catalog:entry:"),
		Breaker: cacheBreaker,
		Logger:  logger.With().Str("component", "catalog").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}

	bus := &events.Bus{
		Store:     repo.EventStore{DB: pool},
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger.With().Str("component", "events").Logger()}},
	}

	cartService := &cart.Service{
		Catalog: catalogService,
		Wallet:  repo.WalletStore{DB: pool},
		Events:  bus,
		Logger:  logger.With().Str("component", "cart").Logger(),
	}
	inventory := repo.InventoryStore{DB: pool}
	fulfillmentService := &fulfillment.Service{
		Orders:    repo.OrderStore{DB: pool},
		Items:     catalogStore,
		Inventory: inventory,
		Locker:    lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff},
		Events:    bus,
		LockTTL:   cfg.AllocationLockTTL,
		LockWait:  cfg.AllocationLockWait,
		KeyPrefix: cfg.LockKeyPrefix,
		Logger:    logger.With().Str("component", "fulfillment").Logger(),
	}

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = promhttp.Handler()
	}
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Handler: &httpapi.Handler{
			Wallet:      cartService,
			Fulfillment: fulfillmentService,
			Logger:      logger,
		},
		Health:         health.Handler{Checker: readinessChecker{db: pool, redis: redisClient}},
		Logger:         logger,
		HTTPMetrics:    httpMetrics,
		MetricsHandler: metricsHandler,
		Tracing:        cfg.TracingEnabled,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		BodyLimit:      cfg.BodyLimitBytes,
		RateLimit: ratelimit.Handler{
			Limiter: ratelimit.Limiter{Client: redisClient, Prefix: cfg.LockKeyPrefix + "ratelimit:"},
			Config: ratelimit.Config{
				Key:    ratelimit.ByClientIP("api:"),
				Window: cfg.RateLimitWindow,
				Max:    cfg.RateLimitMax,
			},
			OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
		},
		Idem: common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL, Prefix: cfg.LockKeyPrefix},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func runMigrations(databaseURL string) error {
	m, err := migrations.New(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()
	return migrations.Up(m)
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = serviceName

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(connectCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if cfg.TracingEnabled {
		if err := redisotel.InstrumentTracing(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}
