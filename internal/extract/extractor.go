// Package extract reads ingestion sources: tabular files (.csv, .xlsx) as header plus rows,
// and documents (.pdf, plain text) as text.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). Unknown extensions are read as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		pages, err := extractPDFPages(content)
		if err != nil {
			return "", err
		}
		return strings.Join(pages, "\n"), nil
	case ".xlsx":
		t, err := readExcelTable(content)
		if err != nil {
			return "", err
		}
		return t.String(), nil
	default:
		return extractPlain(content)
	}
}

// Pages returns the text of each page of a document. Plain text files are a single page.
// Pages with no extractable text are returned as empty strings so page numbers stay aligned.
func (e *Extractor) Pages(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if strings.ToLower(filepath.Ext(path)) == ".pdf" {
		return extractPDFPages(content)
	}
	text, err := extractPlain(content)
	if err != nil {
		return nil, err
	}
	return []string{text}, nil
}
