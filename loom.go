// Package loom is the public API for embedding the Loom context graph server.
//
// Consumers import this package to run the server inside their own process
// instead of shipping the loom binary:
//
//	app, err := loom.New(
//	    loom.WithVersion(version),
//	    loom.WithLogger(logger),
//	    loom.WithDBPath("/var/lib/loom/loom.db"),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: loom (root) imports
// internal/*, but internal/* never imports loom (root).
package loom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/loomworks/loom/internal/config"
	"github.com/loomworks/loom/internal/embedding"
	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/mcp"
	"github.com/loomworks/loom/internal/ratelimit"
	"github.com/loomworks/loom/internal/replay"
	"github.com/loomworks/loom/internal/resolve"
	"github.com/loomworks/loom/internal/secrets"
	"github.com/loomworks/loom/internal/server"
	"github.com/loomworks/loom/internal/storage"
	"github.com/loomworks/loom/internal/telemetry"
	"github.com/loomworks/loom/internal/vector"
	"github.com/loomworks/loom/migrations"
	"github.com/loomworks/loom/ui"
)

// App is the Loom server lifecycle. Construct with New(), run with Run().
// App has no public fields, use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	scheduler    *engine.Scheduler
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the Loom server. It opens the database, runs migrations,
// wires the render pipeline and resolver capabilities, and returns a
// ready-to-run App. It does NOT start any goroutines or accept HTTP
// connections, call Run() for that.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.dataKey != "" {
		cfg.DataKey = o.dataKey
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("loom starting", "version", version, "port", cfg.Port, "db", cfg.DBPath)

	ctx := context.Background()

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, true)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.Open(ctx, cfg.DBPath, logger)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("storage: %w", err)
	}

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		_ = db.Close()
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("migrations: %w", err)
	}

	// Sealer for data-source connection strings (optional). Without a key,
	// data sources are disabled and resolvers that need sealed URLs report
	// feature_not_enabled.
	var sealer *secrets.Sealer
	if cfg.DataKey != "" {
		key, err := secrets.ParseKey(cfg.DataKey)
		if err != nil {
			_ = db.Close()
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("data key: %w", err)
		}
		sealer, err = secrets.NewSealer(key)
		if err != nil {
			_ = db.Close()
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("sealer: %w", err)
		}
	} else {
		logger.Info("data sources: disabled (no LOOM_DATA_KEY)")
	}

	embedder := newEmbeddingProvider(cfg, logger)

	registry := buildRegistry(cfg, db, sealer, embedder, logger)
	for _, r := range o.resolvers {
		registry.Register(r)
		logger.Info("custom resolver registered", "scheme", r.Scheme())
	}

	resolver := resolve.NewResolver(registry, resolve.Config{
		Timeout:         cfg.ResolverTimeout,
		MaxConcurrent:   cfg.ResolverConcurrency,
		OfflineFallback: cfg.OfflineFallback,
	}, logger)

	pipeline := engine.NewPipeline(resolver, logger)
	replayer := replay.NewOrchestrator(db, pipeline, logger)
	scheduler := engine.NewScheduler(pipeline, cfg.SchedulerQuiet, logger)

	mcpSrv := mcp.New(db, pipeline, replayer, logger)

	uiFS := o.uiFS
	if uiFS == nil {
		uiFS, err = ui.DistFS()
		if err != nil {
			_ = db.Close()
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("ui: %w", err)
		}
	}
	if uiFS != nil {
		logger.Info("ui: embedded SPA loaded")
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = ratelimit.NewMemoryLimiter(float64(cfg.RateLimitPerMinute)/60.0, cfg.RateLimitPerMinute)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"per_minute", cfg.RateLimitPerMinute)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.ServerConfig{
		DB:                  db,
		Renderer:            pipeline,
		Replayer:            replayer,
		Sealer:              sealer,
		Limiter:             limiter,
		Scheduler:           scheduler,
		MCPServer:           mcpSrv.MCPServer(),
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		UIFS:                uiFS,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		scheduler:    scheduler,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Handler returns the root HTTP handler, for embedding in an existing server
// or for httptest. The debounced /api/preview/live route answers only while
// Run is active, since Run owns the scheduler loop.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the HTTP listener and the render scheduler and blocks until ctx
// is cancelled or the listener fails, then shuts everything down gracefully.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}

	// Graceful shutdown. Each phase gets its own timeout so early completion
	// doesn't steal budget from later phases. Order: (1) stop accepting new
	// HTTP requests and drain in-flight, (2) stop the scheduler, (3) release
	// the limiter and database, (4) flush telemetry.
	a.logger.Info("loom shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	schedCtx, schedCancel := context.WithTimeout(context.Background(), 5*time.Second)
	a.scheduler.Stop(schedCtx)
	schedCancel()

	if err := a.limiter.Close(); err != nil {
		a.logger.Error("limiter close error", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("db close error", "error", err)
	}

	otelCtx, otelCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := a.otelShutdown(otelCtx); err != nil {
		a.logger.Error("telemetry shutdown error", "error", err)
	}
	otelCancel()

	a.logger.Info("loom stopped")
	return runErr
}

// buildRegistry assembles the resolver capability set. Disabled backends stay
// registered so callers get feature_not_enabled instead of unsupported_scheme.
func buildRegistry(cfg config.Config, db *storage.DB, sealer *secrets.Sealer, embedder embedding.Provider, logger *slog.Logger) *resolve.Registry {
	caps := []resolve.Capability{
		resolve.NewChatCapability(db),
		resolve.SQLiteCapability{},
	}

	// Backends that dereference sealed connection URLs need the sealer.
	sealed := func(scheme string, build func() resolve.Capability) resolve.Capability {
		if sealer == nil {
			return resolve.Disabled(scheme)
		}
		return build()
	}

	if cfg.EnableSQL {
		caps = append(caps, sealed("sql", func() resolve.Capability {
			return resolve.NewSQLCapability(db, sealer)
		}))
	} else {
		caps = append(caps, resolve.Disabled("sql"))
	}

	if cfg.EnableNeo4j {
		caps = append(caps, sealed("neo4j", func() resolve.Capability {
			return resolve.NewNeo4jCapability(db, sealer)
		}))
	} else {
		caps = append(caps, resolve.Disabled("neo4j"))
	}

	if cfg.EnableMilvus {
		caps = append(caps, sealed("milvus", func() resolve.Capability {
			return resolve.NewMilvusCapability(db, sealer)
		}))
	} else {
		caps = append(caps, resolve.Disabled("milvus"))
	}

	if cfg.EnableVector {
		caps = append(caps,
			sealed("qdrant", func() resolve.Capability {
				return resolve.NewRetrievalCapability("qdrant", db, sealer,
					func(ctx context.Context, unsealed string) (vector.Retriever, error) {
						return vector.NewQdrantRetriever(vector.QdrantConfig{URL: unsealed}, embedder, logger)
					})
			}),
			sealed("pgvector", func() resolve.Capability {
				return resolve.NewRetrievalCapability("pgvector", db, sealer,
					func(ctx context.Context, unsealed string) (vector.Retriever, error) {
						return vector.NewPgvectorRetriever(ctx, unsealed, embedder)
					})
			}),
		)
	} else {
		caps = append(caps, resolve.Disabled("qdrant"), resolve.Disabled("pgvector"))
	}

	return resolve.NewRegistry(caps...)
}

// newEmbeddingProvider selects the embedding provider for vector retrieval.
// Ollama keeps embeddings on-premises; noop keeps the pipeline functional
// without a model.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	switch cfg.EmbeddingProvider {
	case "ollama":
		logger.Info("embedding provider: ollama",
			"url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", cfg.EmbeddingDimensions)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, cfg.EmbeddingDimensions)
	default:
		logger.Info("embedding provider: noop")
		return embedding.NewNoopProvider(cfg.EmbeddingDimensions)
	}
}
