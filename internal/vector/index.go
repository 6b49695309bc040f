// Package vector is the vector-similarity side of hybrid retrieval: an append-only index of
// normalized embeddings searched by inner product.
package vector

import "context"

// Index stores vectors by entry ID and returns the nearest ones to a query.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns at most k hits ordered by descending score. Equal scores keep
	// insertion order.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Save(path string) error
	Load(path string) error
	Size() int
	// IDs returns the indexed entry IDs in insertion order.
	IDs() []string
	Dimensions() int
	Close() error
}

// Hit is a single vector search result; ID is the collection entry ID.
type Hit struct {
	ID    string
	Score float64 // inner product, equal to cosine similarity for normalized vectors
}
