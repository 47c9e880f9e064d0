package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/filmgrid/hub/internal/api/handlers"
	"github.com/filmgrid/hub/internal/api/middleware"
	"github.com/filmgrid/hub/internal/config"
	"github.com/filmgrid/hub/internal/observability"
	"github.com/filmgrid/hub/internal/providers"
	"github.com/filmgrid/hub/internal/repository"
	"github.com/filmgrid/hub/internal/service"
	"github.com/filmgrid/hub/internal/workers"
	"github.com/filmgrid/hub/pkg/cache"
)

const (
	rankingCacheName      = "ranking"
	rankingCacheKeyPrefix = "filmgrid:ranking:"

	enqueueMaxRetries     = 3
	enqueueInitialBackoff = 100 * time.Millisecond
	enqueueMaxBackoff     = 2 * time.Second
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	db             *pgxpool.Pool
	server         *http.Server
	river          *river.Client[pgx.Tx]
	redis          *redis.Client
	meterProvider  observability.MeterProviderShutdown
	tracerProvider observability.TracerProviderShutdown
	logger         *slog.Logger
}

// appMetrics unpacks the aggregate into per-concern collectors; every field is nil when metrics are off.
type appMetrics struct {
	recommendations observability.RecommendationMetrics
	embeddings      observability.EmbeddingMetrics
	cache           observability.CacheMetrics
	api             observability.APIMetrics
}

func newAppMetrics(m *observability.Metrics) appMetrics {
	if m == nil {
		return appMetrics{}
	}

	return appMetrics{
		recommendations: m.Recommendations,
		embeddings:      m.Embeddings,
		cache:           m.Cache,
		api:             m.API,
	}
}

// NewApp builds and wires all components. It does not start the HTTP server or River;
// call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool, logger *slog.Logger) (_ *App, err error) {
	app := &App{cfg: cfg, db: db, logger: logger}

	// Release whatever was created before a wiring failure.
	defer func() {
		if err != nil {
			if obsErr := shutdownObservability(context.Background(), app.tracerProvider, app.meterProvider); obsErr != nil {
				logger.Error("shutdown observability after startup error", "error", obsErr)
			}

			if app.redis != nil {
				_ = app.redis.Close()
			}
		}
	}()

	var (
		metricsHandler http.Handler
		aggregate      *observability.Metrics
	)

	if cfg.PrometheusEnabled {
		app.meterProvider, metricsHandler, aggregate, err = observability.NewMeterProvider(ctx,
			observability.MeterProviderConfig{
				ServiceName: cfg.ServiceName,
				OTLPPush:    cfg.OtelMetricsExporter == "otlp",
			})
		if err != nil {
			return nil, fmt.Errorf("create meter provider: %w", err)
		}
	} else {
		logger.Warn("metrics not enabled (PROMETHEUS_ENABLED=false)")
	}

	metrics := newAppMetrics(aggregate)

	app.tracerProvider, err = observability.NewTracerProvider(ctx, observability.TracerProviderConfig{
		Exporter:    cfg.OtelTracesExporter,
		ServiceName: cfg.ServiceName,
		Sampler:     cfg.OtelTracesSampler,
		SamplerArg:  cfg.OtelTracesSamplerArg,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracer provider: %w", err)
	}

	if app.tracerProvider == nil {
		logger.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	}

	embedder, err := providers.NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	generator, err := providers.NewGenerator(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("generation provider: %w", err)
	}

	logger.Info("providers configured",
		"embedding_provider", cfg.EmbeddingProvider,
		"embedding_model", embedder.EmbeddingModel(),
		"generation_provider", cfg.GenerationProvider,
		"rerank_mode", cfg.RerankMode,
	)

	moviesRepo := repository.NewMoviesRepository(db)

	rankingCache, err := app.newRankingCache(ctx)
	if err != nil {
		return nil, err
	}

	retriever := service.NewRetriever(service.RetrieverParams{
		Searcher:         moviesRepo,
		Exact:            cfg.VectorSearchExact,
		FailureThreshold: cfg.BreakerFailureThreshold,
		OpenTimeout:      cfg.BreakerOpenTimeout,
		Logger:           logger,
	})

	reranker := service.NewReranker(service.RerankerParams{
		Generator:          generator,
		Mode:               service.RerankMode(cfg.RerankMode),
		EnrichExplanations: cfg.RerankEnrichExplanations,
		EnrichThreshold:    cfg.RerankEnrichThreshold,
		Metrics:            metrics.recommendations,
		Logger:             logger,
	})

	var fallback service.DegradedRetriever
	if cfg.FallbackEnabled {
		fallback = service.NewLocalRanker(service.LocalRankerParams{
			Sampler:         moviesRepo,
			EmbeddingClient: embedder,
			SampleSize:      cfg.FallbackSampleSize,
			Timeout:         cfg.FallbackTimeout,
			EmbeddingRPS:    cfg.FallbackEmbeddingRPS,
			Metrics:         metrics.embeddings,
			Logger:          logger,
		})
	}

	recommendationService := service.NewRecommendationService(service.RecommendationServiceParams{
		EmbeddingClient:        embedder,
		Retriever:              retriever,
		Ranker:                 reranker,
		Fallback:               fallback,
		RetrievalAmplification: cfg.RetrievalAmplification,
		RetrievalFloor:         cfg.RetrievalFloor,
		MaxLimit:               cfg.MaxPageLimit,
		RankingCache:           rankingCache,
		Metrics:                metrics.recommendations,
		EmbeddingMetrics:       metrics.embeddings,
		CacheMetrics:           metrics.cache,
		Logger:                 logger,
	})

	backfillService := service.NewBackfillService(service.BackfillServiceParams{
		Store:           moviesRepo,
		EmbeddingClient: embedder,
		Model:           embedder.EmbeddingModel(),
		BatchDelay:      cfg.BackfillBatchDelay,
		ClaimTTL:        cfg.BackfillClaimTTL,
		Metrics:         metrics.embeddings,
		Logger:          logger,
	})

	app.river, err = newRiverClient(ctx, db, cfg, backfillService, logger)
	if err != nil {
		return nil, err
	}

	enqueuer := service.NewBackfillEnqueuer(service.BackfillEnqueuerParams{
		Inserter: service.NewRetryingJobInserter(app.river, service.RetryingJobInserterConfig{
			MaxRetries:     enqueueMaxRetries,
			InitialBackoff: enqueueInitialBackoff,
			MaxBackoff:     enqueueMaxBackoff,
			Logger:         logger,
		}),
		Metrics: metrics.embeddings,
		Logger:  logger,
	})

	router := newRouter(routerParams{
		cfg:             cfg,
		logger:          logger,
		apiMetrics:      metrics.api,
		metricsHandler:  metricsHandler,
		health:          handlers.NewHealthHandler(db),
		recommendations: handlers.NewRecommendationsHandler(recommendationService),
		movies:          handlers.NewMoviesHandler(service.NewMoviesService(moviesRepo)),
		admin:           handlers.NewAdminHandler(enqueuer),
	})

	app.server = newHTTPServer(cfg, router)

	return app, nil
}

// newRankingCache returns nil when caching is off. REDIS_URL takes precedence over the in-process LRU.
func (a *App) newRankingCache(ctx context.Context) (*cache.LoaderCache[service.RankingKey, service.RankingResult], error) {
	keyFn := service.RankingKey.String

	if a.cfg.RedisURL != "" {
		opts, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}

		a.redis = redis.NewClient(opts)

		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}

		a.logger.Info("ranking cache enabled", "cache", rankingCacheName, "store", "redis", "ttl", a.cfg.RankingCacheTTL)

		store := cache.NewRedisStore[service.RankingResult](a.redis, rankingCacheKeyPrefix, a.cfg.RankingCacheTTL)

		return cache.NewLoaderCache[service.RankingKey, service.RankingResult](store, keyFn), nil
	}

	if a.cfg.RankingCacheSize == 0 {
		//nolint:nilnil // intentional: ranking cache disabled
		return nil, nil
	}

	store, err := cache.NewLRUStore[service.RankingResult](a.cfg.RankingCacheSize, a.cfg.RankingCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("create ranking cache: %w", err)
	}

	a.logger.Info("ranking cache enabled", "cache", rankingCacheName, "store", "lru",
		"size", a.cfg.RankingCacheSize, "ttl", a.cfg.RankingCacheTTL)

	return cache.NewLoaderCache[service.RankingKey, service.RankingResult](store, keyFn), nil
}

// newRiverClient applies River's own schema migrations and registers the backfill worker on the embeddings queue.
func newRiverClient(
	ctx context.Context, db *pgxpool.Pool, cfg *config.Config, backfill *service.BackfillService, logger *slog.Logger,
) (*river.Client[pgx.Tx], error) {
	driver := riverpgxv5.New(db)

	migrator, err := rivermigrate.New(driver, &rivermigrate.Config{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("create River migrator: %w", err)
	}

	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("migrate River schema: %w", err)
	}

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewBackfillEmbeddingsWorker(backfill, cfg.BackfillJobTimeout, logger))

	client, err := river.NewClient(driver, &river.Config{
		Queues: map[string]river.QueueConfig{
			service.EmbeddingsQueueName: {MaxWorkers: cfg.BackfillMaxWorkers},
		},
		Workers:      riverWorkers,
		ErrorHandler: &workers.ErrorHandler{Logger: logger},
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create River client: %w", err)
	}

	return client, nil
}

type routerParams struct {
	cfg             *config.Config
	logger          *slog.Logger
	apiMetrics      observability.APIMetrics
	metricsHandler  http.Handler
	health          *handlers.HealthHandler
	recommendations *handlers.RecommendationsHandler
	movies          *handlers.MoviesHandler
	admin           *handlers.AdminHandler
}

// newRouter mounts public probes at the root and API-key protected routes under /v1.
func newRouter(p routerParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Metrics(p.apiMetrics),
		middleware.Logging(p.logger),
		middleware.MaxBody(p.cfg.MaxBodyBytes, p.apiMetrics),
	)

	r.Get("/health", p.health.Check)
	r.Get("/ready", p.health.Ready)

	if p.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", p.metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(p.cfg.APIKey))

		r.Post("/recommendations", p.recommendations.Recommend)

		r.Get("/movies", p.movies.List)
		r.Get("/movies/filter-options", p.movies.FilterOptions)
		r.Get("/movies/{id}", p.movies.Get)

		r.Post("/admin/embeddings/backfill", p.admin.BackfillEmbeddings)
	})

	return r
}

// newHTTPServer wraps the router as RequestID -> otelhttp(router) so access logs get trace_id/span_id.
func newHTTPServer(cfg *config.Config, router http.Handler) *http.Server {
	handler := otelhttp.NewHandler(router, "filmgrid-api",
		// Skip tracing and HTTP metrics for probes and scrapes to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			switch r.URL.Path {
			case "/health", "/ready", "/metrics":
				return false
			default:
				return true
			}
		}),
	)
	handler = middleware.RequestID(handler)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}
}

// Run starts the HTTP server and River, then blocks until ctx is cancelled (e.g. signal)
// or a component fails. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 2)

	// River gets a context that outlives ctx so Shutdown can stop it softly.
	if err := a.river.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("river: %w", err)
	}

	go func() {
		a.logger.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr <- fmt.Errorf("server: %w", err)
		}
	}()

	select {
	case err := <-runErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(
	ctx context.Context, tracer observability.TracerProviderShutdown, meter observability.MeterProviderShutdown,
) error {
	var first error

	if tracer != nil {
		if err := tracer.Shutdown(ctx); err != nil {
			first = fmt.Errorf("shutdown tracer provider: %w", err)
		}
	}

	if meter != nil {
		if err := meter.Shutdown(ctx); err != nil {
			if first == nil {
				first = fmt.Errorf("shutdown meter provider: %w", err)
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

// Shutdown stops River first so in-flight backfill jobs finish or are released, then the HTTP
// server, then Redis and observability. The pool is closed by the caller. Call after Run returns.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			a.logger.Error("shutdown observability", "error", obsErr)
		}
	}()

	if a.redis != nil {
		defer func() {
			if closeErr := a.redis.Close(); closeErr != nil {
				a.logger.Error("close redis client", "error", closeErr)
			}
		}()
	}

	if stopErr := a.river.Stop(ctx); stopErr != nil {
		a.logger.Error("river stop", "error", stopErr)

		err = fmt.Errorf("river stop: %w", stopErr)
	}

	if shutdownErr := a.server.Shutdown(ctx); shutdownErr != nil && !errors.Is(shutdownErr, http.ErrServerClosed) {
		if err == nil {
			err = fmt.Errorf("server shutdown: %w", shutdownErr)
		} else {
			a.logger.Error("server shutdown", "error", shutdownErr)
		}
	}

	return err
}
