package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/collection"
	"github.com/Marvins20/ai-ethics-multiagents/internal/extract"
	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
	"github.com/Marvins20/ai-ethics-multiagents/internal/refs"
)

// IncidentLoader ingests the incident spreadsheet. With a resolver, each incident's
// reports are resolved at ingestion time and stored with the entry.
type IncidentLoader struct {
	path     string
	w        *collectionWriter
	resolver *refs.Resolver
}

func (l *IncidentLoader) Name() string       { return "incidents" }
func (l *IncidentLoader) Source() string     { return l.path }
func (l *IncidentLoader) Collection() string { return collection.Incidents }

// Load reads one entry per spreadsheet row. The reports column is stored as a JSON array
// of reference numbers whatever format it was written in; a value that cannot be parsed
// is kept as written.
func (l *IncidentLoader) Load(ctx context.Context) (int, error) {
	logger := l.w.logger.With(zap.String("loader", l.Name()))
	if ok, err := sourceExists(l.path, logger); !ok {
		return 0, err
	}
	if done, err := l.w.ingested(ctx, collection.Incidents); err != nil || done {
		if done {
			logger.Info("Collection already ingested", zap.String("collection", collection.Incidents))
		}
		return 0, err
	}

	table, err := extract.ReadTable(l.path)
	if err != nil {
		return 0, fmt.Errorf("read incidents: %w", err)
	}
	prov := l.w.provenance(l.path, OwnerIncidents)
	entries := make([]models.Entry, 0, len(table.Rows))
	resolved := 0
	for _, row := range table.Rows {
		v := func(col string) string { return table.Value(row, col) }
		content := pageContent(
			field{"Title", v("title")},
			field{"Description", v("description")},
			field{"Deployer", v("Alleged deployer of AI system")},
			field{"Developer", v("Alleged developer of AI system")},
			field{"Harmed Parties", v("Alleged harmed or nearly harmed parties")},
		)
		if content == "" {
			continue
		}
		meta := &models.IncidentMetadata{
			Provenance:    prov,
			ID:            v("_id"),
			IncidentID:    v("incident_id"),
			IncidentDate:  v("date"),
			Deployer:      v("Alleged deployer of AI system"),
			Developer:     v("Alleged developer of AI system"),
			HarmedParties: v("Alleged harmed or nearly harmed parties"),
			Title:         v("title"),
		}
		values := l.reports(meta, v("reports"), logger)
		if l.resolver != nil && len(refs.Offsets(values)) > 0 {
			records, err := l.resolver.Resolve(ctx, values)
			if err != nil {
				logger.Warn("Failed to resolve incident reports", zap.String("incident_id", meta.IncidentID), zap.Error(err))
			} else if len(records) > 0 {
				meta.ReportsDetails = records
				resolved++
			}
		}
		entries = append(entries, models.Entry{Content: content, Metadata: meta})
	}
	n, err := l.w.write(ctx, collection.Incidents, entries)
	if err == nil {
		logger.Info("Ingested incidents",
			zap.Int("rows", len(entries)),
			zap.Int("entries", n),
			zap.Int("resolved", resolved))
	}
	return n, err
}

// reports normalizes the serialized reference list into meta.Reports and returns the
// parsed values.
func (l *IncidentLoader) reports(meta *models.IncidentMetadata, raw string, logger *zap.Logger) []any {
	values, format, err := refs.ParseList(raw)
	switch {
	case err != nil:
		logger.Warn("Unparsable reports list", zap.String("incident_id", meta.IncidentID), zap.Error(err))
		meta.Reports = raw
		return nil
	case format == refs.FormatRecords:
		meta.Reports = raw
		return nil
	}
	nums := make([]int, 0, len(values))
	for _, v := range values {
		if n, ok := refs.ParseInt(v); ok {
			nums = append(nums, n)
		}
	}
	meta.Reports = refs.Encode(nums)
	return values
}
