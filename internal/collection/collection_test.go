package collection

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Marvins20/ai-ethics-multiagents/internal/embedding"
	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
	"github.com/Marvins20/ai-ethics-multiagents/internal/storage"
)

type countingEmbedder struct {
	*embedding.HashEmbedder
	mu    sync.Mutex
	texts int
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.texts += len(texts)
	c.mu.Unlock()
	return c.HashEmbedder.EmbedBatch(ctx, texts)
}

func newStore(t *testing.T, path string) storage.Storage {
	t.Helper()
	s, err := storage.NewSQLiteStorage(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func risk(title, content string) models.Entry {
	return models.Entry{Content: content, Metadata: &models.RiskMetadata{Title: title}}
}

func TestRegistry_sameHandlePerName(t *testing.T) {
	reg := NewRegistry(newStore(t, ":memory:"), embedding.NewHashEmbedder(32))
	defer reg.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	got := make([]*Collection, 8)
	errs := make([]error, len(got))
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = reg.Get(ctx, Incidents)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, c := range got[1:] {
		require.Same(t, got[0], c)
	}

	other, err := reg.Get(ctx, Risks)
	require.NoError(t, err)
	require.NotSame(t, got[0], other)
	require.Equal(t, []string{Risks, Incidents}, reg.Names())

	_, err = reg.Get(ctx, "")
	require.Error(t, err)
}

func TestCollection_AddAllPairsByPosition(t *testing.T) {
	reg := NewRegistry(newStore(t, ":memory:"), embedding.NewHashEmbedder(32))
	defer reg.Close()
	ctx := context.Background()

	c, err := reg.Get(ctx, Risks)
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, []models.Entry{
		risk("Bias", "Title: Bias"),
		risk("Privacy", "Title: Privacy"),
	}))
	// Not idempotent: the same rows are stored again.
	require.NoError(t, c.Add(ctx, []models.Entry{risk("Bias", "Title: Bias")}))

	contents, metas, err := c.All(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Title: Bias", "Title: Privacy", "Title: Bias"}, contents)
	require.Len(t, metas, 3)
	require.Equal(t, "Privacy", metas[1].(*models.RiskMetadata).Title)

	entries, err := c.Entries(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, entries[0].ID)
	require.NotEqual(t, entries[0].ID, entries[2].ID)
	require.Equal(t, Risks, entries[0].Collection)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestCollection_SimilaritySearch(t *testing.T) {
	reg := NewRegistry(newStore(t, ":memory:"), embedding.NewHashEmbedder(256))
	defer reg.Close()
	ctx := context.Background()

	c, err := reg.Get(ctx, Incidents)
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, []models.Entry{
		{ID: "face", Content: "facial recognition wrongful arrest", Metadata: &models.IncidentMetadata{}},
		{ID: "bot", Content: "chatbot invented refund policy", Metadata: &models.IncidentMetadata{}},
	}))

	hits, err := c.SimilaritySearch(ctx, "wrongful arrest", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "face", hits[0].ID)
}

func TestCollection_indexPersistsAcrossRegistries(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store := newStore(t, filepath.Join(dir, "entries.db"))
	indexDir := filepath.Join(dir, "vectors")

	emb := &countingEmbedder{HashEmbedder: embedding.NewHashEmbedder(32)}
	reg := NewRegistry(store, emb, WithIndexDir(indexDir))
	c, err := reg.Get(ctx, Risks)
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, []models.Entry{risk("a", "alpha"), risk("b", "beta")}))
	require.NoError(t, reg.Close())
	_, err = os.Stat(filepath.Join(indexDir, Risks+".idx"))
	require.NoError(t, err)

	// Reopening with a saved index does not re-embed.
	emb2 := &countingEmbedder{HashEmbedder: embedding.NewHashEmbedder(32)}
	reg2 := NewRegistry(store, emb2, WithIndexDir(indexDir))
	defer reg2.Close()
	_, err = reg2.Get(ctx, Risks)
	require.NoError(t, err)
	require.Zero(t, emb2.texts)
}

func TestCollection_rebuildsMissingIndex(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store := newStore(t, filepath.Join(dir, "entries.db"))
	indexDir := filepath.Join(dir, "vectors")

	reg := NewRegistry(store, embedding.NewHashEmbedder(32), WithIndexDir(indexDir))
	c, err := reg.Get(ctx, Risks)
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, []models.Entry{risk("a", "alpha"), risk("b", "beta")}))
	require.NoError(t, reg.Close())
	require.NoError(t, os.Remove(filepath.Join(indexDir, Risks+".idx")))

	emb := &countingEmbedder{HashEmbedder: embedding.NewHashEmbedder(32)}
	reg2 := NewRegistry(store, emb, WithIndexDir(indexDir))
	defer reg2.Close()
	c2, err := reg2.Get(ctx, Risks)
	require.NoError(t, err)
	require.Equal(t, 2, emb.texts)

	hits, err := c2.SimilaritySearch(ctx, "beta", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

// reversedEmbedder maps text into a different vector space of the same dimension.
type reversedEmbedder struct {
	*embedding.HashEmbedder
}

func (r reversedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := r.HashEmbedder.Embed(ctx, text)
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
	return v, err
}

func (r reversedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := r.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r reversedEmbedder) Fingerprint() string {
	return "reversed/" + embedding.Fingerprint(r.HashEmbedder)
}

func TestCollection_rebuildsIndexFromOtherEmbedder(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store := newStore(t, filepath.Join(dir, "entries.db"))
	indexDir := filepath.Join(dir, "vectors")

	reg := NewRegistry(store, embedding.NewHashEmbedder(32), WithIndexDir(indexDir))
	c, err := reg.Get(ctx, Risks)
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, []models.Entry{{ID: "a", Content: "model drift in production", Metadata: &models.RiskMetadata{}}}))
	require.NoError(t, reg.Close())

	reg2 := NewRegistry(store, reversedEmbedder{embedding.NewHashEmbedder(32)}, WithIndexDir(indexDir))
	defer reg2.Close()
	c2, err := reg2.Get(ctx, Risks)
	require.NoError(t, err)

	hits, err := c2.SimilaritySearch(ctx, "model drift in production", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "a", hits[0].ID)
	require.InDelta(t, 1.0, hits[0].Score, 1e-5)
}

func TestCollection_rebuildsIndexWithOtherIDs(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	indexDir := filepath.Join(dir, "vectors")

	first := newStore(t, filepath.Join(dir, "first.db"))
	reg := NewRegistry(first, embedding.NewHashEmbedder(32), WithIndexDir(indexDir))
	c, err := reg.Get(ctx, Risks)
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, []models.Entry{{ID: "old", Content: "alpha", Metadata: &models.RiskMetadata{}}}))
	require.NoError(t, reg.Close())

	// A different entry store with the same number of entries.
	second := newStore(t, filepath.Join(dir, "second.db"))
	require.NoError(t, second.InsertEntries(ctx, Risks, []models.Entry{{ID: "new", Content: "beta", Metadata: &models.RiskMetadata{}}}))

	emb := &countingEmbedder{HashEmbedder: embedding.NewHashEmbedder(32)}
	reg2 := NewRegistry(second, emb, WithIndexDir(indexDir))
	defer reg2.Close()
	c2, err := reg2.Get(ctx, Risks)
	require.NoError(t, err)
	require.Equal(t, 1, emb.texts)

	hits, err := c2.SimilaritySearch(ctx, "beta", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "new", hits[0].ID)
}
