package keyword

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

const batchSize = 500

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index     bleve.Index
	fuzziness int
}

// Option configures a BleveIndex.
type Option func(*BleveIndex)

// WithFuzziness enables typo-tolerant matching within the given edit distance (1 or 2).
// Zero disables it.
func WithFuzziness(n int) Option {
	return func(b *BleveIndex) {
		if n > 2 {
			n = 2
		}
		b.fuzziness = n
	}
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase and tokenize, no stemming.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	idMapping := bleve.NewKeywordFieldMapping()
	idMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("id", idMapping)
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = standard.Name
	return im
}

// NewMemIndex creates an in-memory Bleve index. It is rebuilt from the collection each time
// a retriever is built and never written to disk.
func NewMemIndex(opts ...Option) (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b := &BleveIndex{index: index}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Add indexes docs in batches.
func (b *BleveIndex) Add(ctx context.Context, docs []Document) error {
	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("failed to index %s: %w", doc.ID, err)
		}
		if batch.Size() >= batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("Bleve batch failed: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("Bleve batch failed: %w", err)
		}
	}
	return nil
}

// Search runs a match query over title and content and returns up to limit results.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	req := bleve.NewSearchRequest(b.buildQuery(query))
	req.Size = limit
	req.SortBy([]string{"-_score", "_id"})
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]Hit, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = Hit{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// buildQuery returns a match query, or with fuzziness set, a disjunction of fuzzy
// queries for each term (any term may match, like MatchQuery).
func (b *BleveIndex) buildQuery(query string) blevequery.Query {
	terms := strings.Fields(strings.ToLower(query))
	if b.fuzziness == 0 || len(terms) == 0 {
		return bleve.NewMatchQuery(query)
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		term = strings.Trim(term, ".,;:!?\"'()[]")
		if term == "" {
			continue
		}
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(b.fuzziness)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
