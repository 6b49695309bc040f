// Package refs maps spreadsheet reference numbers onto report store offsets.
//
// A reference number is the 1-based row number of a report in the source spreadsheet,
// where row 1 is the header. The report store addresses rows by 0-based data offset.
// ToOffset is the only place the two numbering schemes meet; every caller, at ingestion
// and at query time, goes through it.
package refs

import (
	"encoding/json"
	"strconv"
)

const (
	// HeaderRows is the number of header rows above the first data row in the source sheet.
	HeaderRows = 1
	// FirstRowNumber is the number the spreadsheet gives its first row.
	FirstRowNumber = 1

	rowShift = HeaderRows + FirstRowNumber
)

// ToOffset converts a reference number into a report store offset. ok is false when the
// reference points at the header or above it; such values are dropped, never clamped.
func ToOffset(ref int) (offset int, ok bool) {
	offset = ref - rowShift
	return offset, offset >= 0
}

// ToReference is the inverse of ToOffset.
func ToReference(offset int) int {
	return offset + rowShift
}

// ParseInt reports whether v is a syntactically integral reference value and returns it.
// Strings must consist of ASCII digits only: signs, spaces and decimal points are rejected.
func ParseInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, n >= 0
	case int64:
		return int(n), n >= 0
	case int32:
		return int(n), n >= 0
	case json.Number:
		return parseDigits(string(n))
	case string:
		return parseDigits(n)
	default:
		return 0, false
	}
}

func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Offsets parses values, converts each to an offset, drops invalid ones and removes
// duplicates while keeping the first-seen order.
func Offsets(values []any) []int {
	out := make([]int, 0, len(values))
	seen := make(map[int]struct{}, len(values))
	for _, v := range values {
		ref, ok := ParseInt(v)
		if !ok {
			continue
		}
		offset, ok := ToOffset(ref)
		if !ok {
			continue
		}
		if _, dup := seen[offset]; dup {
			continue
		}
		seen[offset] = struct{}{}
		out = append(out, offset)
	}
	return out
}

// Ints converts a typed reference list into the []any form accepted by Offsets and Resolve.
func Ints(refs []int) []any {
	out := make([]any, len(refs))
	for i, r := range refs {
		out[i] = r
	}
	return out
}

// Encode returns the canonical serialized form of a reference list: a JSON array of integers.
func Encode(refs []int) string {
	if refs == nil {
		refs = []int{}
	}
	data, _ := json.Marshal(refs)
	return string(data)
}
