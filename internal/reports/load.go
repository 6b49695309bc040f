package reports

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/extract"
)

type columnType int

const (
	textColumn columnType = iota
	numericColumn
)

type column struct {
	name string
	typ  columnType
}

// columns is the fixed reports schema, in source order.
var columns = []column{
	{"_id", textColumn},
	{"authors", textColumn},
	{"date_downloaded", textColumn},
	{"date_modified", textColumn},
	{"date_published", textColumn},
	{"date_submitted", textColumn},
	{"description", textColumn},
	{"epoch_date_downloaded", numericColumn},
	{"epoch_date_modified", numericColumn},
	{"epoch_date_published", numericColumn},
	{"epoch_date_submitted", numericColumn},
	{"image_url", textColumn},
	{"language", textColumn},
	{"ref_number", numericColumn},
	{"report_number", numericColumn},
	{"source_domain", textColumn},
	{"submitters", textColumn},
	{"text", textColumn},
	{"title", textColumn},
	{"url", textColumn},
	{"tags", textColumn},
}

func schema() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS reports (\n\trow_offset INTEGER PRIMARY KEY")
	for _, c := range columns {
		typ := "TEXT"
		if c.typ == numericColumn {
			typ = "DOUBLE"
		}
		fmt.Fprintf(&b, ",\n\t%q %s", c.name, typ)
	}
	b.WriteString("\n);")
	return b.String()
}

// EnsureLoaded bulk-loads the reports table from sourcePath (.csv or .xlsx) when the table
// is empty, and returns the number of rows in the table afterwards. A missing source is
// logged and leaves the table empty; it is not an error.
func (s *SQLiteStore) EnsureLoaded(ctx context.Context, sourcePath string) (int, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	if n > 0 {
		return n, nil
	}
	if _, err := os.Stat(sourcePath); errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Reports source not found, store left empty", zap.String("path", sourcePath))
		return 0, nil
	}

	table, err := extract.ReadTable(sourcePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read reports source: %w", err)
	}
	if err := s.load(ctx, table); err != nil {
		return 0, err
	}
	s.logger.Info("Loaded reports", zap.String("path", sourcePath), zap.Int("rows", len(table.Rows)))
	return len(table.Rows), nil
}

func (s *SQLiteStore) load(ctx context.Context, table *extract.Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	names := make([]string, 0, len(columns)+1)
	names = append(names, "row_offset")
	for _, c := range columns {
		names = append(names, strconv.Quote(c.name))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO reports (`+strings.Join(names, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(names))
	for offset, row := range table.Rows {
		args[0] = offset
		for i, c := range columns {
			args[i+1] = cellValue(c, table.Value(row, c.name))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert report at offset %d: %w", offset, err)
		}
	}
	return tx.Commit()
}

// cellValue converts a source cell for its column. Numeric cells that do not parse, NaN
// and the exported-document sentinel {'$numberDouble': 'NaN'} become NULL.
func cellValue(c column, raw string) any {
	if raw == "" {
		return nil
	}
	if c.typ == textColumn {
		return raw
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
