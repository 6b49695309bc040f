// Package keyword is the lexical side of hybrid retrieval: a term-frequency ranked
// full-text index over collection entries.
package keyword

import "context"

// Document is the indexed view of a collection entry.
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Index defines keyword indexing and search.
type Index interface {
	Add(ctx context.Context, docs []Document) error
	// Search returns at most limit hits by descending score. Equal scores are ordered by ID.
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
	Close() error
}

// Hit is a single keyword search hit.
type Hit struct {
	ID    string
	Score float64
}
