// Package app assembles the stores, collections, ingestion pipeline and search tools from
// configuration. Commands and the HTTP server share one App.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/collection"
	"github.com/Marvins20/ai-ethics-multiagents/internal/config"
	"github.com/Marvins20/ai-ethics-multiagents/internal/embedding"
	"github.com/Marvins20/ai-ethics-multiagents/internal/enrich"
	"github.com/Marvins20/ai-ethics-multiagents/internal/ingest"
	"github.com/Marvins20/ai-ethics-multiagents/internal/metrics"
	"github.com/Marvins20/ai-ethics-multiagents/internal/rag"
	"github.com/Marvins20/ai-ethics-multiagents/internal/refs"
	"github.com/Marvins20/ai-ethics-multiagents/internal/reports"
	"github.com/Marvins20/ai-ethics-multiagents/internal/search"
	"github.com/Marvins20/ai-ethics-multiagents/internal/server"
	"github.com/Marvins20/ai-ethics-multiagents/internal/storage"
	"github.com/Marvins20/ai-ethics-multiagents/internal/watcher"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Storage  *storage.SQLiteStorage
	Embedder embedding.Embedder
	Registry *collection.Registry
	// Reports is nil when the record store could not be opened; resolution then fails
	// with refs.ErrStoreNotInitialized.
	Reports   *reports.SQLiteStore
	Resolver  *refs.Resolver
	Enricher  *enrich.Enricher
	Pipeline  *ingest.Pipeline
	Risks     *rag.RiskRAG
	Incidents *rag.IncidentRAG
	Tools     *rag.Toolbox

	watcher *watcher.Watcher
}

// New opens the stores and wires every component. It does not ingest anything.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Storage = store

	a.Embedder = newEmbedder(cfg.Embedding, logger)
	a.Registry = collection.NewRegistry(store, a.Embedder,
		collection.WithIndexDir(cfg.Storage.IndexDir),
		collection.WithLogger(logger))

	rs, err := reports.Open(cfg.Storage.ReportsDBPath,
		reports.WithLogger(logger),
		reports.WithMetrics(a.Metrics),
		reports.WithBreaker(reports.BreakerConfig{
			MinRequests:      cfg.Breaker.MinRequests,
			FailureRatio:     cfg.Breaker.FailureRatio,
			OpenTimeout:      cfg.Breaker.OpenTimeout,
			HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
		}))
	if err != nil {
		logger.Warn("Record store unavailable, incident reports will not be resolved",
			zap.String("path", cfg.Storage.ReportsDBPath), zap.Error(err))
		a.Resolver = refs.NewResolver(nil, refs.WithLogger(logger))
	} else {
		a.Reports = rs
		a.Resolver = refs.NewResolver(rs, refs.WithLogger(logger))
	}
	a.Enricher = enrich.New(a.Resolver, enrich.WithLogger(logger), enrich.WithMetrics(a.Metrics))

	a.Pipeline = ingest.NewPipeline(a.Registry, a.Reports, ingest.Sources{
		Reports:   cfg.Sources.Reports,
		Risks:     cfg.Sources.Risks,
		Incidents: cfg.Sources.Incidents,
		Framework: cfg.Sources.Framework,
	},
		ingest.WithLogger(logger),
		ingest.WithMetrics(a.Metrics),
		ingest.WithChunking(cfg.Search.ChunkSize, cfg.Search.ChunkOverlap),
		ingest.WithEagerResolution(cfg.Search.EagerResolution))

	ragOpts := []rag.Option{
		rag.WithLogger(logger),
		rag.WithMetrics(a.Metrics),
		rag.WithSearchOptions(
			search.WithWeights(search.Weights{Lexical: cfg.Search.LexicalWeight, Vector: cfg.Search.VectorWeight}),
			search.WithCandidateDepth(cfg.Search.CandidateDepth),
			search.WithMinVectorScore(cfg.Search.MinVectorScore),
			search.WithFuzziness(cfg.Search.Fuzziness),
			search.WithMetrics(a.Metrics),
		),
	}
	a.Risks = rag.NewRiskRAG(a.Registry, ragOpts...)
	a.Incidents = rag.NewIncidentRAG(a.Registry, a.Enricher, a.ingestIncidents, ragOpts...)
	a.Tools = rag.NewToolbox(a.Risks, a.Incidents)
	return a, nil
}

// newEmbedder builds the configured embedder, falling back to the hash embedder when the
// ONNX model cannot be loaded.
func newEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) embedding.Embedder {
	ecfg := embedding.Config{
		Provider:   cfg.Provider,
		ModelPath:  cfg.ModelPath,
		Dimensions: cfg.Dimensions,
		MaxTokens:  cfg.MaxTokens,
		CacheSize:  cfg.CacheSize,
	}
	e, err := embedding.New(ecfg)
	if err == nil {
		return e
	}
	logger.Warn("Embedder unavailable, falling back to hash embedder",
		zap.String("provider", cfg.Provider), zap.Error(err))
	ecfg.Provider = embedding.ProviderHash
	e, _ = embedding.New(ecfg)
	return e
}

func (a *App) ingestIncidents(ctx context.Context) error {
	_, err := a.Pipeline.RunCollection(ctx, collection.Incidents)
	return err
}

// Ingest runs every loader, or only the one filling the named collection, and makes the
// search tools pick up new entries.
func (a *App) Ingest(ctx context.Context, name string) ([]ingest.Result, error) {
	var results []ingest.Result
	if name == "" {
		results = a.Pipeline.Run(ctx)
	} else {
		r, err := a.Pipeline.RunCollection(ctx, name)
		if r.Name == "" {
			return nil, err
		}
		results = []ingest.Result{r}
	}
	a.invalidate()
	return results, nil
}

func (a *App) invalidate() {
	a.Risks.Invalidate()
	a.Incidents.Invalidate()
}

// IngestSource runs the loader reading path. It is the watcher's change callback.
func (a *App) IngestSource(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	r, ok := a.Pipeline.IngestSource(ctx, path)
	if !ok {
		a.Logger.Debug("Changed file is not a source", zap.String("path", path))
		return
	}
	if r.Err != nil {
		a.Logger.Warn("Source ingestion failed", zap.String("path", path), zap.Error(r.Err))
		return
	}
	a.Logger.Info("Source ingested", zap.String("path", path), zap.String("loader", r.Name), zap.Int("entries", r.Entries))
	a.invalidate()
}

// Status reports entry counts, the record store state and disk usage.
func (a *App) Status(ctx context.Context) (server.Status, error) {
	st := server.Status{Collections: make(map[string]int)}
	names, err := a.Storage.Collections(ctx)
	if err != nil {
		return st, fmt.Errorf("list collections: %w", err)
	}
	names = append(names, collection.Risks, collection.Incidents, collection.Frameworks)
	for _, name := range names {
		if _, ok := st.Collections[name]; ok {
			continue
		}
		n, err := a.Storage.CountEntries(ctx, name)
		if err != nil {
			return st, fmt.Errorf("count %s: %w", name, err)
		}
		st.Collections[name] = n
	}

	if a.Reports != nil {
		n, err := a.Reports.Count(ctx)
		if err != nil {
			a.Logger.Warn("status: count reports failed", zap.Error(err))
		}
		st.Reports = n
		st.Breaker = a.Reports.BreakerState().String()
	} else {
		st.Breaker = "unavailable"
	}

	diskBytes, err := storage.DiskUsageBytes(
		a.Config.Storage.DatabasePath,
		a.Config.Storage.ReportsDBPath,
		a.Config.Storage.IndexDir,
	)
	if err == nil {
		st.DiskUsageBytes = diskBytes
	}
	if a.watcher != nil {
		st.WatchedSources = a.watcher.Sources()
	}
	st.Config = map[string]any{
		"embedding_provider":   a.Config.Embedding.Provider,
		"embedding_dimensions": a.Embedder.Dimensions(),
		"chunk_size":           a.Config.Search.ChunkSize,
		"chunk_overlap":        a.Config.Search.ChunkOverlap,
		"candidate_depth":      a.Config.Search.CandidateDepth,
		"min_vector_score":     a.Config.Search.MinVectorScore,
		"fuzziness":            a.Config.Search.Fuzziness,
		"eager_resolution":     a.Config.Search.EagerResolution,
		"database_path":        a.Config.Storage.DatabasePath,
		"reports_db_path":      a.Config.Storage.ReportsDBPath,
		"index_dir":            a.Config.Storage.IndexDir,
	}
	return st, nil
}

// Server returns an HTTP server over the app.
func (a *App) Server() *server.Server {
	return server.NewServer(server.Deps{
		Risks:     a.Risks,
		Incidents: a.Incidents,
		Resolver:  a.Resolver,
		Tools:     a.Tools,
		Ingest:    a,
		Status:    a,
		Metrics:   a.Metrics,
	}, &a.Config.Server, &a.Config.Search, a.Logger)
}

// Watch starts watching the configured source files. A source that appears or changes
// is ingested. Watching stops when ctx is done.
func (a *App) Watch(ctx context.Context) error {
	w := watcher.New(a.Config.Sources.Paths(), a.IngestSource,
		watcher.WithLogger(a.Logger),
		watcher.WithDebounce(a.Config.Watch.Debounce))
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	a.watcher = w
	return nil
}

// Serve ingests the sources, starts the watcher when enabled and serves HTTP until ctx
// is done.
func (a *App) Serve(ctx context.Context) error {
	for _, r := range a.Pipeline.Run(ctx) {
		if r.Err != nil {
			a.Logger.Warn("Startup ingestion failed", zap.String("loader", r.Name), zap.Error(r.Err))
		}
	}
	a.invalidate()

	if a.Config.Watch.EnabledOrDefault() {
		if err := a.Watch(ctx); err != nil {
			a.Logger.Warn("Source watching disabled", zap.Error(err))
		}
	}

	srv := a.Server()
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	a.Logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// Close releases every component.
func (a *App) Close() error {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	var errs []error
	if a.Registry != nil {
		errs = append(errs, a.Registry.Close())
	}
	if a.Embedder != nil {
		errs = append(errs, a.Embedder.Close())
	}
	if a.Reports != nil {
		errs = append(errs, a.Reports.Close())
	}
	if a.Storage != nil {
		errs = append(errs, a.Storage.Close())
	}
	return errors.Join(errs...)
}
