package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/collection"
	"github.com/Marvins20/ai-ethics-multiagents/internal/extract"
	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
)

// RiskLoader ingests the AI risk taxonomy spreadsheet.
type RiskLoader struct {
	path string
	w    *collectionWriter
}

func (l *RiskLoader) Name() string       { return "risks" }
func (l *RiskLoader) Source() string     { return l.path }
func (l *RiskLoader) Collection() string { return collection.Risks }

// Load reads one entry per spreadsheet row. Rows with no content columns are skipped.
func (l *RiskLoader) Load(ctx context.Context) (int, error) {
	logger := l.w.logger.With(zap.String("loader", l.Name()))
	if ok, err := sourceExists(l.path, logger); !ok {
		return 0, err
	}
	if done, err := l.w.ingested(ctx, collection.Risks); err != nil || done {
		if done {
			logger.Info("Collection already ingested", zap.String("collection", collection.Risks))
		}
		return 0, err
	}

	table, err := extract.ReadTable(l.path)
	if err != nil {
		return 0, fmt.Errorf("read risks: %w", err)
	}
	prov := l.w.provenance(l.path, OwnerRisks)
	entries := make([]models.Entry, 0, len(table.Rows))
	for _, row := range table.Rows {
		v := func(col string) string { return table.Value(row, col) }
		content := pageContent(
			field{"Title", v("Title")},
			field{"Risk category", v("Risk category")},
			field{"Risk subcategory", v("Risk subcategory")},
			field{"Description", v("Description")},
			field{"Additional ev.", v("Additional ev.")},
		)
		if content == "" {
			continue
		}
		entries = append(entries, models.Entry{
			Content: content,
			Metadata: &models.RiskMetadata{
				Provenance:      prov,
				Title:           v("Title"),
				RiskCategory:    v("Risk category"),
				RiskSubcategory: v("Risk subcategory"),
				Entity:          v("Entity"),
				Intent:          v("Intent"),
				Timing:          v("Timing"),
				Domain:          v("Domain"),
				SubDomain:       v("Sub-domain"),
				QuickRef:        v("QuickRef"),
				EvID:            v("Ev_ID"),
			},
		})
	}
	n, err := l.w.write(ctx, collection.Risks, entries)
	if err == nil {
		logger.Info("Ingested risks", zap.Int("rows", len(entries)), zap.Int("entries", n))
	}
	return n, err
}
