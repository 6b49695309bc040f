package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/collection"
	"github.com/Marvins20/ai-ethics-multiagents/internal/extract"
	"github.com/Marvins20/ai-ethics-multiagents/internal/metrics"
	"github.com/Marvins20/ai-ethics-multiagents/internal/refs"
	"github.com/Marvins20/ai-ethics-multiagents/internal/reports"
)

// Sources are the paths of the raw source files.
type Sources struct {
	Reports   string
	Risks     string
	Incidents string
	Framework string
}

// Result is the outcome of one loader.
type Result struct {
	Name       string `json:"name"`
	Collection string `json:"collection,omitempty"`
	Entries    int    `json:"entries"`
	Err        error  `json:"-"`
}

// Pipeline runs the loaders. Runs are serialized.
type Pipeline struct {
	loaders []Loader
	logger  *zap.Logger
	mu      sync.Mutex
}

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	metrics      *metrics.Metrics
	chunkSize    int
	chunkOverlap int
	eager        bool
	now          func() time.Time
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics counts ingested entries on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithChunking overrides DefaultChunkSize and DefaultChunkOverlap.
func WithChunking(size, overlap int) Option {
	return func(o *options) {
		o.chunkSize = size
		o.chunkOverlap = overlap
	}
}

// WithEagerResolution resolves incident reports while ingesting instead of at query time.
func WithEagerResolution(eager bool) Option {
	return func(o *options) {
		o.eager = eager
	}
}

// NewPipeline creates the pipeline for src. The record store is loaded first so eager
// resolution of incident reports can find the rows. store may be nil, in which case
// reports are neither loaded nor resolved eagerly.
func NewPipeline(registry *collection.Registry, store *reports.SQLiteStore, src Sources, opts ...Option) *Pipeline {
	o := options{
		logger:       zap.NewNop(),
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	w := &collectionWriter{
		registry: registry,
		chunker:  NewChunker(o.chunkSize, o.chunkOverlap),
		logger:   o.logger,
		metrics:  o.metrics,
		now:      o.now,
	}

	p := &Pipeline{logger: o.logger}
	incidents := &IncidentLoader{path: src.Incidents, w: w}
	if store != nil {
		p.loaders = append(p.loaders, &ReportLoader{path: src.Reports, store: store})
		if o.eager {
			incidents.resolver = refs.NewResolver(store, refs.WithLogger(o.logger))
		}
	}
	p.loaders = append(p.loaders,
		&RiskLoader{path: src.Risks, w: w},
		incidents,
		&FrameworkLoader{path: src.Framework, w: w, extractor: extract.NewExtractor()},
	)
	return p
}

// Loaders returns the pipeline's loaders in run order.
func (p *Pipeline) Loaders() []Loader {
	return p.loaders
}

// Run runs every loader. A failing loader is recorded in its Result and the others
// still run.
func (p *Pipeline) Run(ctx context.Context) []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	results := make([]Result, 0, len(p.loaders))
	for _, l := range p.loaders {
		results = append(results, p.run(ctx, l))
	}
	return results
}

// RunCollection runs the loader that fills the named collection.
func (p *Pipeline) RunCollection(ctx context.Context, name string) (Result, error) {
	for _, l := range p.loaders {
		if l.Collection() == name {
			p.mu.Lock()
			defer p.mu.Unlock()
			r := p.run(ctx, l)
			return r, r.Err
		}
	}
	return Result{}, fmt.Errorf("no loader for collection %s", name)
}

// IngestSource runs the loader reading path. ok is false when no loader reads it.
func (p *Pipeline) IngestSource(ctx context.Context, path string) (r Result, ok bool) {
	for _, l := range p.loaders {
		if samePath(l.Source(), path) {
			p.mu.Lock()
			defer p.mu.Unlock()
			return p.run(ctx, l), true
		}
	}
	return Result{}, false
}

func (p *Pipeline) run(ctx context.Context, l Loader) Result {
	start := time.Now()
	n, err := l.Load(ctx)
	r := Result{Name: l.Name(), Collection: l.Collection(), Entries: n, Err: err}
	if err != nil {
		p.logger.Error("Ingestion failed", zap.String("loader", l.Name()), zap.Error(err))
	} else {
		p.logger.Debug("Loader finished",
			zap.String("loader", l.Name()),
			zap.Int("entries", n),
			zap.Duration("elapsed", time.Since(start)))
	}
	return r
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}
