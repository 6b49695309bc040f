package embedding

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/Marvins20/ai-ethics-multiagents/internal/vector"
)

// DefaultHashDimensions is the vector length used when none is configured.
const DefaultHashDimensions = 512

// HashEmbedder is a deterministic bag-of-words embedder using signed feature hashing.
// Texts that share no terms have near-zero similarity, so a similarity floor on the
// vector side can tell "unrelated" from "weakly related".
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder producing vectors of the given length.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the unit-length term vector of text. Text with no terms yields a zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for _, term := range Terms(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(term))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dimensions))
		if sum&(1<<63) != 0 {
			emb[bucket]--
		} else {
			emb[bucket]++
		}
	}
	return vector.Normalize(emb), nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Fingerprint names the hash provider and dimension.
func (e *HashEmbedder) Fingerprint() string {
	return fmt.Sprintf("%s/%d", ProviderHash, e.dimensions)
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}
