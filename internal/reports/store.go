// Package reports is the record store: a SQLite table of source reports addressed by their
// 0-based position in the source spreadsheet.
//
// Reads must not run while EnsureLoaded is bulk-loading; the store does not lock against it.
package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/metrics"
	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
)

// BreakerConfig controls the circuit breaker in front of store reads.
type BreakerConfig struct {
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

// DefaultBreakerConfig returns the breaker settings used when none are given.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MinRequests:      5,
		FailureRatio:     0.6,
		OpenTimeout:      30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// SQLiteStore implements the record store on SQLite.
type SQLiteStore struct {
	db      *sql.DB
	logger  *zap.Logger
	metrics *metrics.Metrics
	breaker *gobreaker.CircuitBreaker[[]models.Report]
	bcfg    BreakerConfig
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the logger for the store.
func WithLogger(logger *zap.Logger) Option {
	return func(s *SQLiteStore) {
		s.logger = logger
	}
}

// WithMetrics records fetch outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SQLiteStore) {
		s.metrics = m
	}
}

// WithBreaker overrides the circuit breaker settings.
func WithBreaker(cfg BreakerConfig) Option {
	return func(s *SQLiteStore) {
		s.bcfg = cfg
	}
}

// Open opens or creates the store database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func Open(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes SQLite writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(schema()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return NewStore(db, opts...), nil
}

// NewStore wraps an open database whose schema already exists.
func NewStore(db *sql.DB, opts ...Option) *SQLiteStore {
	s := &SQLiteStore{
		db:     db,
		logger: zap.NewNop(),
		bcfg:   DefaultBreakerConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.breaker = gobreaker.NewCircuitBreaker[[]models.Report](gobreaker.Settings{
		Name:        "reports.fetch",
		MaxRequests: s.bcfg.HalfOpenMaxCalls,
		Timeout:     s.bcfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.bcfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.bcfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return s
}

// FetchByOffsets returns the reports at the given offsets in the order given. Offsets with
// no row are omitted and repeated offsets are returned once, at their first position.
// A storage failure is logged and yields an empty result: a caller cannot tell an
// unreachable store from missing rows.
func (s *SQLiteStore) FetchByOffsets(ctx context.Context, offsets []int) []models.Report {
	if len(offsets) == 0 {
		return []models.Report{}
	}
	unique := make([]int, 0, len(offsets))
	seen := make(map[int]struct{}, len(offsets))
	for _, off := range offsets {
		if _, ok := seen[off]; ok {
			continue
		}
		seen[off] = struct{}{}
		unique = append(unique, off)
	}

	rows, err := s.breaker.Execute(func() ([]models.Report, error) {
		return s.queryOffsets(ctx, unique)
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "breaker_open"
		}
		s.logger.Warn("Report fetch failed",
			zap.Ints("offsets", unique),
			zap.String("outcome", outcome),
			zap.Error(err))
		s.metrics.ObserveReportFetch(outcome, 0)
		return []models.Report{}
	}

	byOffset := make(map[int]models.Report, len(rows))
	for _, r := range rows {
		byOffset[r.Offset] = r
	}
	out := make([]models.Report, 0, len(rows))
	for _, off := range unique {
		if r, ok := byOffset[off]; ok {
			out = append(out, r)
		}
	}
	s.metrics.ObserveReportFetch("ok", len(out))
	return out
}

func (s *SQLiteStore) queryOffsets(ctx context.Context, offsets []int) ([]models.Report, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(offsets)), ",")
	args := make([]any, len(offsets))
	for i, off := range offsets {
		args[i] = off
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_offset, authors, date_published, description, image_url, language,
		 source_domain, title, text, url
		 FROM reports WHERE row_offset IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Report
	for rows.Next() {
		var r models.Report
		var author, published, desc, image, lang, domain, title, text, url sql.NullString
		if err := rows.Scan(&r.Offset, &author, &published, &desc, &image, &lang,
			&domain, &title, &text, &url); err != nil {
			return nil, err
		}
		r.Author = author.String
		r.DatePublished = published.String
		r.Description = desc.String
		r.ImageURL = image.String
		r.Language = lang.String
		r.SourceDomain = domain.String
		r.Title = title.String
		r.Text = text.String
		r.URL = url.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of reports in the store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n)
	return n, err
}

// BreakerState reports the state of the read circuit breaker.
func (s *SQLiteStore) BreakerState() gobreaker.State {
	return s.breaker.State()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
