// Package enrich attaches source report records to incident search results whose metadata
// only holds report reference numbers.
package enrich

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/metrics"
	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
	"github.com/Marvins20/ai-ethics-multiagents/internal/refs"
)

// Status is the result of enriching one entry.
type Status string

const (
	StatusEnriched Status = "enriched"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Reason qualifies a skipped or failed Status.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNotIncident      Reason = "not_incident"
	ReasonAlreadyResolved  Reason = "already_resolved"
	ReasonNoReferences     Reason = "no_references"
	ReasonNoRecords        Reason = "no_records"
	ReasonParseFailure     Reason = "parse_failure"
	ReasonStoreUnavailable Reason = "store_unavailable"
	ReasonPanic            Reason = "panic"
)

// Outcome reports what happened to one result entry.
type Outcome struct {
	EntryID string
	Status  Status
	Reason  Reason
	Records int
	Err     error
}

// Enricher resolves embedded report references of incident results.
type Enricher struct {
	resolver *refs.Resolver
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Enricher) {
		e.logger = logger
	}
}

// WithMetrics records outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Enricher) {
		e.metrics = m
	}
}

// New creates an Enricher using resolver.
func New(resolver *refs.Resolver, opts ...Option) *Enricher {
	e := &Enricher{resolver: resolver, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich resolves the report references of every incident entry in results and stores the
// records in the entry's ReportsDetails. Entries are modified in place. A failure on one
// entry is recorded in its Outcome and does not stop the others. Entries that already
// carry records are skipped without touching the store, so enriching twice is safe.
func (e *Enricher) Enrich(ctx context.Context, results []models.ScoredEntry) []Outcome {
	outcomes := make([]Outcome, len(results))
	for i := range results {
		o := e.enrichOne(ctx, &results[i].Entry)
		if o.Err != nil {
			e.logger.Warn("Enrichment failed",
				zap.String("entry_id", o.EntryID),
				zap.String("reason", string(o.Reason)),
				zap.Error(o.Err))
		}
		e.metrics.ObserveEnrichment(string(o.Status), string(o.Reason))
		outcomes[i] = o
	}
	return outcomes
}

func (e *Enricher) enrichOne(ctx context.Context, entry *models.Entry) (o Outcome) {
	o.EntryID = entry.ID
	defer func() {
		if p := recover(); p != nil {
			o = Outcome{EntryID: entry.ID, Status: StatusFailed, Reason: ReasonPanic, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	meta, ok := entry.Metadata.(*models.IncidentMetadata)
	if !ok || meta == nil {
		return Outcome{EntryID: entry.ID, Status: StatusSkipped, Reason: ReasonNotIncident}
	}
	if meta.Resolved() {
		return Outcome{EntryID: entry.ID, Status: StatusSkipped, Reason: ReasonAlreadyResolved}
	}

	values, format, err := refs.ParseList(meta.Reports)
	if err != nil {
		return Outcome{EntryID: entry.ID, Status: StatusFailed, Reason: ReasonParseFailure, Err: err}
	}
	if format == refs.FormatRecords {
		return Outcome{EntryID: entry.ID, Status: StatusSkipped, Reason: ReasonAlreadyResolved}
	}
	if len(refs.Offsets(values)) == 0 {
		return Outcome{EntryID: entry.ID, Status: StatusSkipped, Reason: ReasonNoReferences}
	}

	records, err := e.resolver.Resolve(ctx, values)
	if err != nil {
		reason := ReasonStoreUnavailable
		if !errors.Is(err, refs.ErrStoreNotInitialized) {
			reason = ReasonNone
		}
		return Outcome{EntryID: entry.ID, Status: StatusFailed, Reason: reason, Err: err}
	}
	if len(records) == 0 {
		// Left unresolved so a later run can retry once the store has the rows.
		return Outcome{EntryID: entry.ID, Status: StatusSkipped, Reason: ReasonNoRecords}
	}

	meta.ReportsDetails = records
	return Outcome{EntryID: entry.ID, Status: StatusEnriched, Records: len(records)}
}

// Summary counts outcomes by status.
type Summary struct {
	Enriched int `json:"enriched"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Records  int `json:"records"`
}

// Summarize totals a batch of outcomes.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		switch o.Status {
		case StatusEnriched:
			s.Enriched++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
		s.Records += o.Records
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d enriched (%d records), %d skipped, %d failed", s.Enriched, s.Records, s.Skipped, s.Failed)
}
