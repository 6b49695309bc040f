package ingest

import (
	"context"

	"github.com/Marvins20/ai-ethics-multiagents/internal/reports"
)

// ReportLoader bulk-loads the source reports into the record store.
type ReportLoader struct {
	path  string
	store *reports.SQLiteStore
}

func (l *ReportLoader) Name() string       { return "reports" }
func (l *ReportLoader) Source() string     { return l.path }
func (l *ReportLoader) Collection() string { return "" }

// Load fills the record store when it is empty and returns the number of rows it holds.
func (l *ReportLoader) Load(ctx context.Context) (int, error) {
	return l.store.EnsureLoaded(ctx, l.path)
}
