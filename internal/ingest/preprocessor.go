package ingest

import (
	"strings"
	"unicode"
)

// Preprocess normalizes extracted document text (trim, collapse whitespace).
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}

// elements splits page text into paragraphs on blank lines and normalizes each one.
// Empty paragraphs are dropped.
func elements(page string) []string {
	page = strings.ReplaceAll(page, "\r\n", "\n")
	var out []string
	for _, para := range strings.Split(page, "\n\n") {
		if p := Preprocess(para); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// field is one labeled value of a page.
type field struct {
	label string
	value string
}

// pageContent renders fields as "Label: value" lines, skipping empty values.
func pageContent(fields ...field) string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		lines = append(lines, f.label+": "+f.value)
	}
	return strings.Join(lines, "\n")
}
