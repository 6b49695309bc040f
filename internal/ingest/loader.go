// Package ingest loads the raw sources into the record store and the document collections.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/collection"
	"github.com/Marvins20/ai-ethics-multiagents/internal/metrics"
	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
)

// Data owners recorded in entry provenance.
const (
	OwnerRisks     = "AI Ethics Team"
	OwnerIncidents = "AIID"
	OwnerFramework = "PL 2338/2023"
)

// Loader ingests one source file.
type Loader interface {
	// Name identifies the loader in logs and results.
	Name() string
	// Source is the path of the file the loader reads.
	Source() string
	// Collection is the collection the loader fills, or "" when it fills the record store.
	Collection() string
	// Load ingests the source and returns the number of entries or rows added.
	Load(ctx context.Context) (int, error)
}

// sourceExists reports whether path exists. A missing source is logged, not an error.
func sourceExists(path string, logger *zap.Logger) (bool, error) {
	if path == "" {
		logger.Warn("No source configured")
		return false, nil
	}
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Source not found, skipping", zap.String("path", path))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return true, nil
}

// collectionWriter chunks entries and adds them to a collection that has not been
// ingested yet.
type collectionWriter struct {
	registry *collection.Registry
	chunker  *Chunker
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// ingested reports whether the named collection already holds entries.
func (w *collectionWriter) ingested(ctx context.Context, name string) (bool, error) {
	coll, err := w.registry.Get(ctx, name)
	if err != nil {
		return false, err
	}
	n, err := coll.Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (w *collectionWriter) write(ctx context.Context, name string, entries []models.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	coll, err := w.registry.Get(ctx, name)
	if err != nil {
		return 0, err
	}
	chunks := w.chunker.SplitEntries(entries)
	if err := coll.Add(ctx, chunks); err != nil {
		return 0, fmt.Errorf("add to %s: %w", name, err)
	}
	w.metrics.AddIngested(name, len(chunks))
	return len(chunks), nil
}

func (w *collectionWriter) provenance(path, owner string) models.Provenance {
	return models.Provenance{
		Source:        filepath.Base(path),
		IngestionDate: w.now().Format("2006-01-02"),
		DataOwner:     owner,
	}
}
