package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/collection"
	"github.com/Marvins20/ai-ethics-multiagents/internal/extract"
	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
)

// FrameworkLoader ingests the regulatory framework document, one entry per paragraph.
type FrameworkLoader struct {
	path      string
	w         *collectionWriter
	extractor *extract.Extractor
}

func (l *FrameworkLoader) Name() string       { return "framework" }
func (l *FrameworkLoader) Source() string     { return l.path }
func (l *FrameworkLoader) Collection() string { return collection.Frameworks }

func (l *FrameworkLoader) Load(ctx context.Context) (int, error) {
	logger := l.w.logger.With(zap.String("loader", l.Name()))
	if ok, err := sourceExists(l.path, logger); !ok {
		return 0, err
	}
	if done, err := l.w.ingested(ctx, collection.Frameworks); err != nil || done {
		if done {
			logger.Info("Collection already ingested", zap.String("collection", collection.Frameworks))
		}
		return 0, err
	}

	pages, err := l.extractor.Pages(l.path)
	if err != nil {
		return 0, fmt.Errorf("extract framework: %w", err)
	}
	prov := l.w.provenance(l.path, OwnerFramework)
	var entries []models.Entry
	for i, page := range pages {
		for j, el := range elements(page) {
			entries = append(entries, models.Entry{
				Content:  el,
				Metadata: &models.FrameworkMetadata{Provenance: prov, Page: i + 1, Element: j},
			})
		}
	}
	n, err := l.w.write(ctx, collection.Frameworks, entries)
	if err == nil {
		logger.Info("Ingested framework", zap.Int("pages", len(pages)), zap.Int("entries", n))
	}
	return n, err
}
