// Package collection manages named document collections. A collection pairs the persisted
// entries of one partition with the vector index built from their text.
package collection

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/embedding"
	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
	"github.com/Marvins20/ai-ethics-multiagents/internal/storage"
	"github.com/Marvins20/ai-ethics-multiagents/internal/vector"
)

// Collection names used by ingestion and retrieval.
const (
	Risks      = "ai_risk_database_v3"
	Incidents  = "incidents_database"
	Frameworks = "reports_database"
)

// Registry hands out one Collection per name. It is created once at startup and passed to
// whatever needs collections.
type Registry struct {
	store    storage.Storage
	embedder embedding.Embedder
	indexDir string
	logger   *zap.Logger

	mu          sync.Mutex
	collections map[string]*Collection
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for the registry and its collections.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithIndexDir persists each collection's vector index as <dir>/<name>.idx.
// Without it, indexes are rebuilt from stored entries on every open.
func WithIndexDir(dir string) Option {
	return func(r *Registry) {
		r.indexDir = dir
	}
}

// NewRegistry creates a registry over the given entry store and embedder.
func NewRegistry(store storage.Storage, embedder embedding.Embedder, opts ...Option) *Registry {
	r := &Registry{
		store:       store,
		embedder:    embedder,
		logger:      zap.NewNop(),
		collections: make(map[string]*Collection),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the collection with the given name, opening it on first use. Every call with
// the same name returns the same *Collection.
func (r *Registry) Get(ctx context.Context, name string) (*Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("collection name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.collections[name]; ok {
		return c, nil
	}
	c, err := r.open(ctx, name)
	if err != nil {
		return nil, err
	}
	r.collections[name] = c
	return c, nil
}

// Names returns the names of the collections opened so far, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.collections))
	for name := range r.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases every open collection.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, c := range r.collections {
		if err := c.index.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close collection %s: %w", name, err)
		}
	}
	r.collections = make(map[string]*Collection)
	return firstErr
}

func (r *Registry) open(ctx context.Context, name string) (*Collection, error) {
	c := &Collection{
		name:        name,
		store:       r.store,
		embedder:    r.embedder,
		fingerprint: embedding.Fingerprint(r.embedder),
		logger:      r.logger.With(zap.String("collection", name)),
	}
	idx, err := c.newIndex()
	if err != nil {
		return nil, err
	}
	c.index = idx
	if r.indexDir != "" {
		c.indexPath = filepath.Join(r.indexDir, name+".idx")
	}
	if err := c.reconcile(ctx); err != nil {
		return nil, fmt.Errorf("open collection %s: %w", name, err)
	}
	return c, nil
}

// Collection is one named partition of entries. Entries are append-only.
type Collection struct {
	name      string
	store     storage.Storage
	embedder    embedding.Embedder
	fingerprint string
	index       vector.Index
	indexPath   string
	logger      *zap.Logger

	mu sync.Mutex // serializes Add
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) newIndex() (*vector.MemoryIndex, error) {
	return vector.NewMemoryIndex(c.embedder.Dimensions(), vector.WithFingerprint(c.fingerprint))
}

// reconcile loads the saved vector index and rebuilds it from stored entries when it was
// built by another embedder or does not hold exactly the stored entry IDs in order.
func (c *Collection) reconcile(ctx context.Context) error {
	if err := c.index.Load(c.indexPath); err != nil {
		c.logger.Warn("Discarding unusable vector index", zap.String("path", c.indexPath), zap.Error(err))
		if idx, err := c.newIndex(); err == nil {
			c.index = idx
		}
	}
	entries, err := c.store.ListEntries(ctx, c.name)
	if err != nil {
		return err
	}
	if sameIDs(c.index.IDs(), entries) {
		return nil
	}

	c.logger.Info("Rebuilding vector index",
		zap.Int("entries", len(entries)),
		zap.Int("indexed", c.index.Size()))
	idx, err := c.newIndex()
	if err != nil {
		return err
	}
	if err := c.embedInto(ctx, idx, entries); err != nil {
		return err
	}
	c.index = idx
	c.save()
	return nil
}

func sameIDs(ids []string, entries []models.Entry) bool {
	if len(ids) != len(entries) {
		return false
	}
	for i, e := range entries {
		if ids[i] != e.ID {
			return false
		}
	}
	return true
}

func (c *Collection) embedInto(ctx context.Context, idx vector.Index, entries []models.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	texts := make([]string, len(entries))
	ids := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Content
		ids[i] = e.ID
	}
	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed entries: %w", err)
	}
	return idx.Add(ctx, ids, vectors)
}

func (c *Collection) save() {
	if c.indexPath == "" {
		return
	}
	if err := c.index.Save(c.indexPath); err != nil {
		c.logger.Warn("Failed to save vector index", zap.String("path", c.indexPath), zap.Error(err))
	}
}

// Add appends entries to the collection. Entries without an ID get a new UUID. Adding the
// same content twice stores it twice.
func (c *Collection) Add(ctx context.Context, entries []models.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	batch := make([]models.Entry, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.Collection = c.name
		batch[i] = e
	}

	texts := make([]string, len(batch))
	ids := make([]string, len(batch))
	for i, e := range batch {
		texts[i] = e.Content
		ids[i] = e.ID
	}
	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed entries: %w", err)
	}
	if err := c.store.InsertEntries(ctx, c.name, batch); err != nil {
		return fmt.Errorf("store entries: %w", err)
	}
	if err := c.index.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("index entries: %w", err)
	}
	c.save()
	c.logger.Debug("Added entries", zap.Int("count", len(batch)))
	return nil
}

// Entries returns every entry in insertion order.
func (c *Collection) Entries(ctx context.Context) ([]models.Entry, error) {
	return c.store.ListEntries(ctx, c.name)
}

// All returns entry contents and metadata paired by position, in insertion order.
func (c *Collection) All(ctx context.Context) ([]string, []models.Metadata, error) {
	entries, err := c.Entries(ctx)
	if err != nil {
		return nil, nil, err
	}
	contents := make([]string, len(entries))
	metas := make([]models.Metadata, len(entries))
	for i, e := range entries {
		contents[i] = e.Content
		metas[i] = e.Metadata
	}
	return contents, metas, nil
}

// Count returns the number of stored entries.
func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.store.CountEntries(ctx, c.name)
}

// SimilaritySearch returns the k entries whose embeddings are closest to text.
func (c *Collection) SimilaritySearch(ctx context.Context, text string, k int) ([]vector.Hit, error) {
	q, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	c.mu.Lock()
	idx := c.index
	c.mu.Unlock()
	return idx.Search(ctx, q, k)
}
