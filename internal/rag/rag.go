// Package rag exposes the risk and incident collections as search tools: lazily built
// hybrid retrievers, fixed "nothing found" messages and report enrichment of incidents.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/collection"
	"github.com/Marvins20/ai-ethics-multiagents/internal/enrich"
	"github.com/Marvins20/ai-ethics-multiagents/internal/metrics"
	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
	"github.com/Marvins20/ai-ethics-multiagents/internal/search"
)

// Messages returned in place of results.
const (
	MsgNoRisks              = "No risks were found related to this type of query."
	MsgNoIncidents          = "No incidents were found related to this type of query."
	MsgRetrieverUnavailable = "Error: Retriever could not be initialized."
)

// IncidentQueryTemplate turns a project description and an action into the vector query.
// The lexical ranker gets only the description and action, since the template's own words
// ("AI", "incidents") appear throughout the incident catalog.
const IncidentQueryTemplate = "Project context: %s. Action: %s. Find relevant AI incidents and failures."

// ErrRetrieverUnavailable is returned by RiskRAG.Search when the risk collection is empty.
var ErrRetrieverUnavailable = errors.New("retriever not initialized")

// Answer is the result of one tool search. Message is set instead of Results when
// nothing was found or no retriever could be built.
type Answer struct {
	Query      string               `json:"query"`
	Results    []models.ScoredEntry `json:"results,omitempty"`
	Message    string               `json:"message,omitempty"`
	Enrichment *enrich.Summary      `json:"enrichment,omitempty"`
}

// Found reports whether the answer carries results.
func (a Answer) Found() bool {
	return len(a.Results) > 0
}

// String renders the answer as tool output text.
func (a Answer) String() string {
	if !a.Found() {
		return a.Message
	}
	var b strings.Builder
	for i, r := range a.Results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] score=%.4f\n%s", i+1, r.Score, r.Entry.Content)
		if meta, ok := r.Entry.Metadata.(*models.IncidentMetadata); ok {
			for _, rep := range meta.ReportsDetails {
				fmt.Fprintf(&b, "\nReport: %s (%s) %s", rep.Title, rep.DatePublished, rep.URL)
			}
		}
	}
	return b.String()
}

// Option configures a RAG tool.
type Option func(*config)

type config struct {
	logger        *zap.Logger
	metrics       *metrics.Metrics
	searchOptions []search.Option
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetrics records searches on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithSearchOptions passes options to every retriever build.
func WithSearchOptions(opts ...search.Option) Option {
	return func(c *config) {
		c.searchOptions = append(c.searchOptions, opts...)
	}
}

func newConfig(opts []Option) config {
	c := config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// lazyRetriever builds a collection's retriever on first use. A failed or empty build is
// not remembered, so the next call tries again.
type lazyRetriever struct {
	registry *collection.Registry
	name     string
	cfg      config

	mu  sync.Mutex
	cur *lease
}

// lease counts the queries using a retriever. A stale lease closes its retriever once the
// last of them is released.
type lease struct {
	r      *search.Retriever
	refs   int
	stale  bool
	closed bool
}

// acquire returns the current retriever, building it if needed, or nil. A non-nil lease
// must be handed back through release.
func (l *lazyRetriever) acquire(ctx context.Context) *lease {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur == nil {
		coll, err := l.registry.Get(ctx, l.name)
		if err != nil {
			l.cfg.logger.Error("Failed to open collection", zap.String("collection", l.name), zap.Error(err))
			return nil
		}
		opts := append([]search.Option{search.WithMetrics(l.cfg.metrics)}, l.cfg.searchOptions...)
		r := search.TryBuild(ctx, coll, l.cfg.logger, opts...)
		if r == nil {
			return nil
		}
		l.cur = &lease{r: r}
	}
	l.cur.refs++
	return l.cur
}

func (l *lazyRetriever) release(ls *lease) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ls.refs--
	if ls.stale && ls.refs == 0 {
		l.closeLocked(ls)
	}
}

// invalidate drops the current retriever so the next call rebuilds it over the latest
// entries. In-flight queries keep using the old one until they release it.
func (l *lazyRetriever) invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur == nil {
		return
	}
	old := l.cur
	l.cur = nil
	old.stale = true
	if old.refs == 0 {
		l.closeLocked(old)
	}
}

func (l *lazyRetriever) closeLocked(ls *lease) {
	if ls.closed {
		return
	}
	ls.closed = true
	if err := ls.r.Close(); err != nil {
		l.cfg.logger.Warn("Failed to close retriever", zap.String("collection", l.name), zap.Error(err))
	}
}

// RiskRAG searches the AI risk taxonomy.
type RiskRAG struct {
	lazy *lazyRetriever
	cfg  config
}

// NewRiskRAG creates the risk search tool over the registry's risk collection.
func NewRiskRAG(registry *collection.Registry, opts ...Option) *RiskRAG {
	cfg := newConfig(opts)
	return &RiskRAG{
		lazy: &lazyRetriever{registry: registry, name: collection.Risks, cfg: cfg},
		cfg:  cfg,
	}
}

// Search returns the topK risks most related to query. With no retriever available it
// returns ErrRetrieverUnavailable along with the unavailable message.
func (r *RiskRAG) Search(ctx context.Context, query string, topK int) (Answer, error) {
	ls := r.lazy.acquire(ctx)
	if ls == nil {
		r.cfg.metrics.ObserveSearch(collection.Risks, "unavailable", 0)
		return Answer{Query: query, Message: MsgRetrieverUnavailable}, ErrRetrieverUnavailable
	}
	results := ls.r.SafeQuery(ctx, query, topK)
	r.lazy.release(ls)
	if len(results) == 0 {
		return Answer{Query: query, Message: MsgNoRisks}, nil
	}
	return Answer{Query: query, Results: results}, nil
}

// Invalidate makes the next search rebuild the retriever.
func (r *RiskRAG) Invalidate() {
	r.lazy.invalidate()
}

// IngestFunc (re)runs ingestion of a collection.
type IngestFunc func(ctx context.Context) error

// IncidentRAG searches the incident collection and attaches source reports to results.
type IncidentRAG struct {
	lazy     *lazyRetriever
	cfg      config
	enricher *enrich.Enricher
	ingest   IngestFunc
}

// NewIncidentRAG creates the incident search tool. ingest, when not nil, is run once
// before giving up on an empty collection.
func NewIncidentRAG(registry *collection.Registry, enricher *enrich.Enricher, ingest IngestFunc, opts ...Option) *IncidentRAG {
	cfg := newConfig(opts)
	return &IncidentRAG{
		lazy:     &lazyRetriever{registry: registry, name: collection.Incidents, cfg: cfg},
		cfg:      cfg,
		enricher: enricher,
		ingest:   ingest,
	}
}

// IncidentQuery builds the retrieval query for a project description and action.
func IncidentQuery(projectDescription, action string) string {
	return fmt.Sprintf(IncidentQueryTemplate, projectDescription, action)
}

// Search returns the topK incidents most related to the action within the project. An
// unavailable retriever is reported through the answer message, not an error.
func (r *IncidentRAG) Search(ctx context.Context, projectDescription, action string, topK int) (Answer, error) {
	query := IncidentQuery(projectDescription, action)
	ls := r.lazy.acquire(ctx)
	if ls == nil && r.ingest != nil {
		r.cfg.logger.Info("Incident retriever unavailable, re-running ingestion")
		if err := r.ingest(ctx); err != nil {
			r.cfg.logger.Warn("Incident ingestion failed", zap.Error(err))
		}
		ls = r.lazy.acquire(ctx)
	}
	if ls == nil {
		r.cfg.metrics.ObserveSearch(collection.Incidents, "unavailable", 0)
		return Answer{Query: query, Message: MsgRetrieverUnavailable}, nil
	}

	results := ls.r.SafeQueryRequest(ctx, search.Request{
		Lexical:  projectDescription + " " + action,
		Semantic: query,
	}, topK)
	r.lazy.release(ls)
	if len(results) == 0 {
		return Answer{Query: query, Message: MsgNoIncidents}, nil
	}
	answer := Answer{Query: query, Results: results}
	if r.enricher != nil {
		summary := enrich.Summarize(r.enricher.Enrich(ctx, answer.Results))
		answer.Enrichment = &summary
	}
	return answer, nil
}

// Invalidate makes the next search rebuild the retriever.
func (r *IncidentRAG) Invalidate() {
	r.lazy.invalidate()
}

// ActionResult is the outcome of searching incidents for one action.
type ActionResult struct {
	Action string `json:"action"`
	Answer Answer `json:"answer"`
	Err    error  `json:"-"`
}

// SearchActions searches incidents for each action of a project. A failing action is
// recorded in its result and the remaining actions are still searched.
func (r *IncidentRAG) SearchActions(ctx context.Context, projectDescription string, actions []string, topK int) []ActionResult {
	out := make([]ActionResult, len(actions))
	for i, action := range actions {
		out[i] = r.searchAction(ctx, projectDescription, action, topK)
		if err := ctx.Err(); err != nil {
			for j := i + 1; j < len(actions); j++ {
				out[j] = ActionResult{Action: actions[j], Err: err}
			}
			break
		}
	}
	return out
}

func (r *IncidentRAG) searchAction(ctx context.Context, projectDescription, action string, topK int) (res ActionResult) {
	res.Action = action
	defer func() {
		if p := recover(); p != nil {
			r.cfg.logger.Error("Incident search panicked", zap.String("action", action), zap.Any("panic", p))
			res = ActionResult{Action: action, Err: fmt.Errorf("search %q: panic: %v", action, p)}
		}
	}()
	answer, err := r.Search(ctx, projectDescription, action, topK)
	res.Answer = answer
	res.Err = err
	return res
}
