package refs

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
)

// ErrStoreNotInitialized is returned by Resolve when the resolver has no record store.
var ErrStoreNotInitialized = errors.New("record store not initialized")

// Fetcher fetches report records by offset. Implementations return records in the order of
// the offsets given, skip offsets with no row, and report storage failures as an empty result.
type Fetcher interface {
	FetchByOffsets(ctx context.Context, offsets []int) []models.Report
}

// Resolver turns reference numbers into report records.
type Resolver struct {
	store  Fetcher
	logger *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger for the resolver.
func WithLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver over store. A nil store is accepted; Resolve then fails
// with ErrStoreNotInitialized.
func NewResolver(store Fetcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the records for the given reference numbers in the order the caller listed
// them. Malformed values and references at or above the header row are dropped silently.
// The store is not contacted when no valid offset remains.
func (r *Resolver) Resolve(ctx context.Context, values []any) ([]models.Report, error) {
	if r == nil || r.store == nil {
		return nil, ErrStoreNotInitialized
	}
	offsets := Offsets(values)
	if len(offsets) == 0 {
		return []models.Report{}, nil
	}

	records := r.store.FetchByOffsets(ctx, offsets)
	byOffset := make(map[int]models.Report, len(records))
	for _, rec := range records {
		byOffset[rec.Offset] = rec
	}

	out := make([]models.Report, 0, len(records))
	for _, off := range offsets {
		if rec, ok := byOffset[off]; ok {
			out = append(out, rec)
		}
	}
	if len(out) < len(offsets) {
		r.logger.Debug("Some references had no report",
			zap.Int("requested", len(offsets)),
			zap.Int("found", len(out)))
	}
	return out, nil
}

// ResolveString parses a serialized reference list and resolves it. A list that already
// holds report objects is returned as FormatRecords with no records and no store call.
func (r *Resolver) ResolveString(ctx context.Context, s string) ([]models.Report, ListFormat, error) {
	values, format, err := ParseList(s)
	if err != nil {
		return nil, "", err
	}
	if format == FormatRecords {
		return nil, format, nil
	}
	records, err := r.Resolve(ctx, values)
	return records, format, err
}
