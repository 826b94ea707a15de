package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/MarketGo/internal/catalog"
	"github.com/utafrali/MarketGo/internal/config"
	"github.com/utafrali/MarketGo/internal/domain"
	"github.com/utafrali/MarketGo/internal/engine"
	"github.com/utafrali/MarketGo/internal/event"
	handler "github.com/utafrali/MarketGo/internal/handler/http"
	"github.com/utafrali/MarketGo/internal/policy"
	"github.com/utafrali/MarketGo/internal/repository/postgres"
	"github.com/utafrali/MarketGo/internal/service"
	"github.com/utafrali/MarketGo/internal/usage"
	"github.com/utafrali/MarketGo/migrations"
	"github.com/utafrali/MarketGo/pkg/database"
	"github.com/utafrali/MarketGo/pkg/health"
	"github.com/utafrali/MarketGo/pkg/httpclient"
	pkgkafka "github.com/utafrali/MarketGo/pkg/kafka"
	"github.com/utafrali/MarketGo/pkg/middleware"
	"github.com/utafrali/MarketGo/pkg/tracing"
)

const serviceName = "promotion-service"

// App wires together all dependencies and runs the promotion service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	orderConfirmed *pkgkafka.Consumer
	orderCanceled  *pkgkafka.Consumer
	promotions     *service.PromotionService
	campaigns      *service.CampaignService
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(serviceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if threshold := cfg.SlowQueryThreshold(); threshold > 0 {
		database.SetSlowQueryLogging(threshold, logger)
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))

	kafkaProducer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := kafkaProducer.Ping(ctx); err != nil {
		logger.Warn("kafka unreachable, events will be dropped until it recovers",
			slog.String("error", err.Error()))
	}

	// Usage counters.
	limiter, err := newLimiter(cfg.UsageBackend, pool, redisClient)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, err
	}
	logger.Info("usage limiter ready", slog.String("backend", cfg.UsageBackend))

	// Catalog: HTTP with retries, behind a breaker, cached in Redis.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.CatalogTimeout
	breaker := httpclient.NewCircuitBreakerClient(httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("catalog"), logger).
		WithFallback(catalog.CircuitOpenFallback)
	lookup := catalog.NewCachedLookup(
		catalog.NewHTTPLookup(breaker, cfg.CatalogURL, logger),
		redisClient, cfg.CatalogCacheTTL, logger)

	// Build the dependency graph.
	campaignRepo := postgres.NewCampaignRepository(pool)
	reservationRepo := postgres.NewReservationRepository(pool)
	events := event.NewProducer(kafkaProducer, logger)

	resolver := engine.NewResolver(campaignRepo, lookup, logger, engine.Options{
		Precision: cfg.CurrencyPrecision,
		Stacking:  engine.StackingMode(cfg.OrderStacking),
	})
	promotions := service.NewPromotionService(resolver, limiter, reservationRepo, events,
		cfg.ReservationTTLDuration(), logger)
	campaigns := service.NewCampaignService(campaignRepo, events,
		policy.Checker{MaxActiveCampaigns: cfg.MaxActiveCampaigns},
		domain.Lifecycle{Grace: cfg.ActivationGrace}, logger)

	// Order events settle reservations.
	orders := event.NewOrderHandler(promotions, logger)
	seen := pkgkafka.NewRedisIdempotencyStore(redisClient, "promo:events:", 24*time.Hour)
	orderConfirmed := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:   cfg.KafkaBrokers,
		GroupID:   cfg.KafkaConsumerGroup + "-order-confirmed",
		Topic:     event.TopicOrderConfirmed,
		MinBytes:  1,
		MaxBytes:  10e6,
		EnableDLQ: true,
	}, pkgkafka.IdempotentHandler(seen, orders.HandleOrderConfirmed, logger), logger)
	orderCanceled := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:   cfg.KafkaBrokers,
		GroupID:   cfg.KafkaConsumerGroup + "-order-canceled",
		Topic:     event.TopicOrderCanceled,
		MinBytes:  1,
		MaxBytes:  10e6,
		EnableDLQ: true,
	}, pkgkafka.IdempotentHandler(seen, orders.HandleOrderCanceled, logger), logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", database.RedisChecker(redisClient))
	healthHandler.RegisterNonCritical("kafka", kafkaProducer.Ping)

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	cors.Environment = cfg.Environment

	router := handler.NewRouter(promotions, campaigns, healthHandler, handler.RouterConfig{
		CORS:             cors,
		PreviewRateLimit: cfg.PreviewRateLimit,
		PreviewBurst:     cfg.PreviewBurst,
		RequestTimeout:   cfg.RequestTimeout,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       kafkaProducer,
		httpServer:     httpServer,
		orderConfirmed: orderConfirmed,
		orderCanceled:  orderCanceled,
		promotions:     promotions,
		campaigns:      campaigns,
		tracerShutdown: tracerShutdown,
	}, nil
}

func newLimiter(backend string, pool *pgxpool.Pool, client redis.UniversalClient) (usage.Backend, error) {
	switch backend {
	case config.UsageMemory:
		return usage.NewMemoryLimiter(), nil
	case config.UsageRedis:
		return usage.NewRedisLimiter(client), nil
	case config.UsagePostgres:
		return usage.NewPostgresLimiter(pool), nil
	default:
		return nil, fmt.Errorf("unknown usage backend %q", backend)
	}
}

// Run starts the HTTP server, Kafka consumers and the sweepers, then blocks
// until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 3)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := a.orderConfirmed.Start(ctx); err != nil {
			errCh <- fmt.Errorf("order confirmed consumer: %w", err)
		}
	}()
	go func() {
		if err := a.orderCanceled.Start(ctx); err != nil {
			errCh <- fmt.Errorf("order canceled consumer: %w", err)
		}
	}()

	go a.every(ctx, a.cfg.ReservationSweepInterval, "reservation expiry", a.promotions.ExpireReservations)
	go a.every(ctx, a.cfg.LifecycleSweepInterval, "campaign lifecycle", a.campaigns.SweepLifecycle)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// every runs job on a ticker until ctx is canceled.
func (a *App) every(ctx context.Context, interval time.Duration, name string, job func(context.Context) (int, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := job(ctx)
			if err != nil {
				a.logger.Error(name+" sweep failed", slog.String("error", err.Error()), slog.Int("processed", n))
			} else if n > 0 {
				a.logger.Info(name+" sweep done", slog.Int("processed", n))
			}
		}
	}
}

// Shutdown stops components in dependency order: HTTP first so in-flight
// requests finish, then consumers, the producer, the tracer and the stores.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.orderConfirmed.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close order confirmed consumer: %w", err))
	}
	if err := a.orderCanceled.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close order canceled consumer: %w", err))
	}
	if err := a.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close kafka producer: %w", err))
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}

	if err := a.redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close redis: %w", err))
	}
	a.pool.Close()

	err := errors.Join(errs...)
	if err != nil {
		a.logger.Error("shutdown completed with errors", slog.String("error", err.Error()))
	} else {
		a.logger.Info("application shutdown complete")
	}
	return err
}
