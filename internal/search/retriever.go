// Package search implements hybrid retrieval over a collection: a lexical ranker and the
// collection's vector ranker, merged by weighted reciprocal-rank fusion.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/collection"
	"github.com/Marvins20/ai-ethics-multiagents/internal/keyword"
	"github.com/Marvins20/ai-ethics-multiagents/internal/metrics"
	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
	"github.com/Marvins20/ai-ethics-multiagents/internal/vector"
)

// ErrNothingFound is returned by Query when neither ranker matched anything.
var ErrNothingFound = errors.New("nothing found")

const (
	// DefaultCandidateDepth is how many candidates each ranker returns before fusion.
	DefaultCandidateDepth = 20
	// DefaultMinVectorScore drops vector hits that are barely related to the query.
	DefaultMinVectorScore = 0.1
)

// Retriever answers queries against a snapshot of one collection taken at Build time.
type Retriever struct {
	coll    *collection.Collection
	lexical keyword.Index
	entries map[string]models.Entry

	weights        Weights
	depth          int
	minVectorScore float64
	fuzziness      int
	logger         *zap.Logger
	metrics        *metrics.Metrics
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// WithMetrics records build and query outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Retriever) {
		r.metrics = m
	}
}

// WithWeights overrides DefaultWeights.
func WithWeights(w Weights) Option {
	return func(r *Retriever) {
		r.weights = w
	}
}

// WithCandidateDepth sets how deep each ranker goes. Queries always go at least topK deep.
func WithCandidateDepth(n int) Option {
	return func(r *Retriever) {
		r.depth = n
	}
}

// WithMinVectorScore drops vector hits scoring below min.
func WithMinVectorScore(min float64) Option {
	return func(r *Retriever) {
		r.minVectorScore = min
	}
}

// WithFuzziness lets lexical terms match within edit distance n (at most 2).
func WithFuzziness(n int) Option {
	return func(r *Retriever) {
		r.fuzziness = n
	}
}

// Build reads every entry of coll and indexes them for lexical search. It returns
// (nil, nil) when the collection is empty: the retriever is unavailable until entries
// are ingested, and the caller should build again later.
func Build(ctx context.Context, coll *collection.Collection, opts ...Option) (*Retriever, error) {
	r := &Retriever{
		coll:           coll,
		weights:        DefaultWeights,
		depth:          DefaultCandidateDepth,
		minVectorScore: DefaultMinVectorScore,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("collection", coll.Name()))

	entries, err := coll.Entries(ctx)
	if err != nil {
		r.metrics.ObserveRetrieverBuild(coll.Name(), "error")
		return nil, fmt.Errorf("read collection %s: %w", coll.Name(), err)
	}
	if len(entries) == 0 {
		r.logger.Info("Collection is empty, no retriever available")
		r.metrics.ObserveRetrieverBuild(coll.Name(), "empty")
		return nil, nil
	}

	lexical, err := keyword.NewMemIndex(keyword.WithFuzziness(r.fuzziness))
	if err != nil {
		r.metrics.ObserveRetrieverBuild(coll.Name(), "error")
		return nil, err
	}
	docs := make([]keyword.Document, len(entries))
	r.entries = make(map[string]models.Entry, len(entries))
	for i, e := range entries {
		docs[i] = keyword.Document{ID: e.ID, Title: e.Title(), Content: e.Content}
		r.entries[e.ID] = e
	}
	if err := lexical.Add(ctx, docs); err != nil {
		_ = lexical.Close()
		r.metrics.ObserveRetrieverBuild(coll.Name(), "error")
		return nil, fmt.Errorf("index collection %s: %w", coll.Name(), err)
	}
	r.lexical = lexical

	r.logger.Info("Retriever built", zap.Int("entries", len(entries)))
	r.metrics.ObserveRetrieverBuild(coll.Name(), "ok")
	return r, nil
}

// TryBuild is Build with failures logged and reported as no retriever.
func TryBuild(ctx context.Context, coll *collection.Collection, logger *zap.Logger, opts ...Option) *Retriever {
	r, err := Build(ctx, coll, append([]Option{WithLogger(logger)}, opts...)...)
	if err != nil {
		logger.Error("Failed to build retriever", zap.String("collection", coll.Name()), zap.Error(err))
		return nil
	}
	return r
}

// Size returns the number of entries the retriever was built over.
func (r *Retriever) Size() int {
	return len(r.entries)
}

// Request holds the text each ranker searches with. The vector ranker can take a framed
// query ("Find incidents about ...") while the lexical ranker only sees the terms that
// should match entry text.
type Request struct {
	Lexical  string
	Semantic string
}

// Query returns up to topK entries ranked by fused score. It returns ErrNothingFound when
// neither ranker matched. Results are identical for identical queries.
func (r *Retriever) Query(ctx context.Context, text string, topK int) ([]models.ScoredEntry, error) {
	return r.QueryRequest(ctx, Request{Lexical: text, Semantic: text}, topK)
}

// QueryRequest is Query with separate texts for the lexical and vector rankers. A ranker
// with empty text contributes nothing.
func (r *Retriever) QueryRequest(ctx context.Context, req Request, topK int) ([]models.ScoredEntry, error) {
	start := time.Now()
	results, err := r.query(ctx, req, topK)
	outcome := "hit"
	switch {
	case errors.Is(err, ErrNothingFound):
		outcome = "empty"
	case err != nil:
		outcome = "error"
	}
	r.metrics.ObserveSearch(r.coll.Name(), outcome, time.Since(start))
	return results, err
}

func (r *Retriever) query(ctx context.Context, req Request, topK int) ([]models.ScoredEntry, error) {
	lexText, vecText := normalizeQuery(req.Lexical), normalizeQuery(req.Semantic)
	if lexText == "" && vecText == "" {
		return nil, ErrNothingFound
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	depth := candidateDepth(r.depth, topK)

	var wg sync.WaitGroup
	var lexHits []keyword.Hit
	var vecHits []vector.Hit
	errChan := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if lexText == "" {
			return
		}
		hits, err := r.lexical.Search(ctx, lexText, depth)
		if err != nil {
			errChan <- fmt.Errorf("lexical search failed: %w", err)
			return
		}
		lexHits = hits
	}()
	go func() {
		defer wg.Done()
		if vecText == "" {
			return
		}
		hits, err := r.coll.SimilaritySearch(ctx, vecText, depth)
		if err != nil {
			errChan <- fmt.Errorf("vector search failed: %w", err)
			return
		}
		vecHits = r.filterVector(hits)
	}()

	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	fused := Fuse(lexHits, vecHits, r.weights)
	out := make([]models.ScoredEntry, 0, topK)
	for _, f := range fused {
		if len(out) == topK {
			break
		}
		e, ok := r.entries[f.ID]
		if !ok {
			// Added to the collection after this retriever was built.
			continue
		}
		out = append(out, models.ScoredEntry{
			Entry:       e.Clone(),
			Score:       f.Score,
			LexicalRank: f.LexicalRank,
			VectorRank:  f.VectorRank,
		})
	}
	if len(out) == 0 {
		return nil, ErrNothingFound
	}
	r.logger.Debug("Query answered",
		zap.Int("lexical", len(lexHits)),
		zap.Int("vector", len(vecHits)),
		zap.Int("results", len(out)))
	return out, nil
}

func (r *Retriever) filterVector(hits []vector.Hit) []vector.Hit {
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= r.minVectorScore {
			kept = append(kept, h)
		}
	}
	return kept
}

// SafeQuery runs Query and never fails: errors and panics are logged and yield nil, as
// does finding nothing.
func (r *Retriever) SafeQuery(ctx context.Context, text string, topK int) []models.ScoredEntry {
	return r.SafeQueryRequest(ctx, Request{Lexical: text, Semantic: text}, topK)
}

// SafeQueryRequest is SafeQuery with separate ranker texts.
func (r *Retriever) SafeQueryRequest(ctx context.Context, req Request, topK int) (results []models.ScoredEntry) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Retriever query panicked", zap.Any("panic", p), zap.String("query", req.Semantic))
			results = nil
		}
	}()
	results, err := r.QueryRequest(ctx, req, topK)
	if err != nil && !errors.Is(err, ErrNothingFound) {
		r.logger.Error("Retriever query failed", zap.String("query", req.Semantic), zap.Error(err))
		return nil
	}
	return results
}

// Close releases the lexical index.
func (r *Retriever) Close() error {
	if r.lexical == nil {
		return nil
	}
	return r.lexical.Close()
}
