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

	"github.com/utafrali/showcase-search/internal/config"
	"github.com/utafrali/showcase-search/internal/engine"
	blevengine "github.com/utafrali/showcase-search/internal/engine/bleve"
	esengine "github.com/utafrali/showcase-search/internal/engine/elasticsearch"
	"github.com/utafrali/showcase-search/internal/engine/memory"
	"github.com/utafrali/showcase-search/internal/event"
	handler "github.com/utafrali/showcase-search/internal/handler/http"
	"github.com/utafrali/showcase-search/internal/hierarchy"
	"github.com/utafrali/showcase-search/internal/repository/postgres"
	rediscache "github.com/utafrali/showcase-search/internal/repository/redis"
	"github.com/utafrali/showcase-search/internal/resolver"
	"github.com/utafrali/showcase-search/internal/service"
	"github.com/utafrali/showcase-search/pkg/database"
	"github.com/utafrali/showcase-search/pkg/health"
	"github.com/utafrali/showcase-search/pkg/httpclient"
	pkgkafka "github.com/utafrali/showcase-search/pkg/kafka"
	"github.com/utafrali/showcase-search/pkg/tracing"
)

// ServiceName identifies the service in logs, metrics and traces.
const ServiceName = "showcase-search"

// App wires together all dependencies and runs the search service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	redis      *redis.Client
	engine     engine.SearchEngine
	search     *service.SearchService
	consumer   *pkgkafka.Consumer
	dlq        *pkgkafka.DLQProducer
	httpServer *http.Server
	shutdownFn func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, version string, logger *slog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	a.shutdownFn, err = tracing.InitTracer(ctx, cfg.Tracing(ServiceName, version))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a.pool, err = database.NewPostgresPool(ctx, cfg.Postgres(), database.DefaultRetryPolicy, logger)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	if err := prometheus.Register(database.NewPoolStatsCollector(a.pool, ServiceName)); err != nil {
		logger.Warn("pool stats collector not registered", slog.String("error", err.Error()))
	}

	a.redis, err = database.NewRedisClient(ctx, cfg.Redis(), database.DefaultRetryPolicy, logger)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	a.engine, err = newEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Repositories. Category metadata is read through the Redis cache.
	categories := rediscache.NewCategoryCache(a.redis, postgres.NewCategoryRepository(a.pool), cfg.CategoryCacheTTL, logger)
	products := postgres.NewProductRepository(a.pool)

	hierarchyStore, err := hierarchy.NewStore(a.pool, cfg.HierarchyCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init hierarchy store: %w", err)
	}

	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = cfg.ResolverTimeout
	resolverClient := httpclient.NewCircuitBreakerClient(
		httpclient.New(clientCfg),
		httpclient.DefaultCircuitBreakerConfig("category-resolver"),
		logger,
	)

	a.search = service.NewSearchService(service.Dependencies{
		Engine:     a.engine,
		Resolver:   resolver.New(resolver.NewHTTPClient(cfg.CategoryResolverURL, resolverClient)),
		Categories: categories,
		Products:   products,
		Reviews:    postgres.NewReviewRepository(a.pool),
		Properties: postgres.NewPropertyRepository(a.pool),
		Hierarchy:  hierarchy.NewReorderer(hierarchyStore),
	}, cfg.BackendTimeout, logger)

	// Health checks.
	healthHandler := health.NewHandler(2 * time.Second)
	healthHandler.Register("search_engine", a.engine.Ping)
	healthHandler.Register("postgres", a.pool.Ping)
	healthHandler.RegisterOptional("redis", func(ctx context.Context) error {
		return a.redis.Ping(ctx).Err()
	})

	// Kafka index sync.
	if cfg.KafkaEnabled {
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		eventConsumer := event.NewConsumer(a.search, hierarchyStore, logger)
		idempotency := pkgkafka.NewRedisIdempotencyStore(a.redis, "showcase:search:event:", 24*time.Hour)

		a.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topics:   event.Topics(),
			MinBytes: 1,
			MaxBytes: 10e6, // 10 MB
		}, pkgkafka.IdempotentHandler(idempotency, eventConsumer.Handle, logger), logger, pkgkafka.WithDeadLetter(a.dlq))

		healthHandler.RegisterOptional("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
		logger.Info("kafka consumer initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.Any("topics", event.Topics()),
		)
	}

	router := handler.NewRouter(handler.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, a.search, healthHandler, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// newEngine builds the configured search backend.
func newEngine(cfg *config.Config, logger *slog.Logger) (engine.SearchEngine, error) {
	switch cfg.SearchEngine {
	case config.EngineElasticsearch:
		eng, err := esengine.New(cfg.ElasticsearchURL, cfg.ElasticsearchIndex, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		logger.Info("elasticsearch search engine initialized",
			slog.String("url", cfg.ElasticsearchURL),
			slog.String("index", cfg.ElasticsearchIndex),
		)
		return eng, nil
	case config.EngineBleve:
		eng, err := blevengine.New(cfg.BleveIndexPath, logger)
		if err != nil {
			return nil, fmt.Errorf("init bleve engine: %w", err)
		}
		logger.Info("bleve search engine initialized", slog.String("path", cfg.BleveIndexPath))
		return eng, nil
	default:
		logger.Info("in-memory search engine initialized")
		return memory.New(), nil
	}
}

// Run starts the HTTP server and the Kafka consumer, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.search != nil {
		if err := a.search.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("search service shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.closeResources()...)

	if a.shutdownFn != nil {
		if err := a.shutdownFn(shutdownCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases connections opened by NewApp. It is safe to call on
// a partially built App.
func (a *App) closeResources() []error {
	var errs []error

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka consumer: %w", err))
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dlq producer: %w", err))
		}
	}
	if closer, ok := a.engine.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close search engine: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}

	for _, err := range errs {
		a.logger.Error("resource close error", slog.String("error", err.Error()))
	}
	return errs
}
