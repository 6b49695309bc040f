package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Table is a tabular source: a header row and the data rows below it. Rows shorter than
// the header are padded with empty cells.
type Table struct {
	Header []string
	Rows   [][]string

	index map[string]int
}

func newTable(records [][]string) *Table {
	t := &Table{}
	if len(records) == 0 {
		return t
	}
	t.Header = make([]string, len(records[0]))
	for i, h := range records[0] {
		t.Header[i] = strings.TrimSpace(h)
	}
	for _, rec := range records[1:] {
		row := make([]string, max(len(t.Header), len(rec)))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Column returns the position of the named column, or -1.
func (t *Table) Column(name string) int {
	if t.index == nil {
		t.index = make(map[string]int, len(t.Header))
		for i, h := range t.Header {
			if _, dup := t.index[h]; !dup {
				t.index[h] = i
			}
		}
	}
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Value returns the named column of row, trimmed, or "" when the column does not exist.
func (t *Table) Value(row []string, name string) string {
	i := t.Column(name)
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// String renders the table as tab-separated lines.
func (t *Table) String() string {
	var buf strings.Builder
	if len(t.Header) > 0 {
		buf.WriteString(strings.Join(t.Header, "\t"))
	}
	for _, row := range t.Rows {
		buf.WriteByte('\n')
		buf.WriteString(strings.TrimRight(strings.Join(row, "\t"), "\t"))
	}
	return strings.TrimSpace(buf.String())
}

// ReadTable reads a .csv or .xlsx file. The first row is the header.
func ReadTable(path string) (*Table, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return readCSVTable(content)
	case ".xlsx":
		return readExcelTable(content)
	default:
		return nil, fmt.Errorf("unsupported table format %q", ext)
	}
}

func readCSVTable(content []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse CSV: %w", err)
		}
		records = append(records, rec)
	}
	return newTable(records), nil
}
