package refs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ListFormat names the encoding a serialized reference list was found in.
type ListFormat string

const (
	FormatEmpty   ListFormat = "empty"
	FormatJSON    ListFormat = "json"
	FormatLiteral ListFormat = "literal"
	FormatCSV     ListFormat = "csv"
	// FormatRecords means the list already holds report objects rather than reference numbers.
	FormatRecords ListFormat = "records"
)

// ErrUnparsable is returned when a serialized list matches none of the accepted formats.
var ErrUnparsable = errors.New("unparsable reference list")

// ParseList decodes a serialized reference list. Formats are tried in order: JSON array,
// Python literal list or tuple, then comma-separated integers. The returned elements are
// json.Number, string, nil, bool or map values; use Offsets to filter them.
func ParseList(s string) ([]any, ListFormat, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, FormatEmpty, nil
	}
	if items, err := decodeJSONList(s); err == nil {
		return items, formatOf(items, FormatJSON), nil
	}
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "(") {
		converted, err := literalToJSON(s)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrUnparsable, err)
		}
		items, err := decodeJSONList(converted)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrUnparsable, err)
		}
		return items, formatOf(items, FormatLiteral), nil
	}
	items, err := splitInts(s)
	if err != nil {
		return nil, "", err
	}
	return items, FormatCSV, nil
}

func decodeJSONList(s string) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after list")
	}
	return items, nil
}

func formatOf(items []any, f ListFormat) ListFormat {
	if len(items) > 0 {
		if _, ok := items[0].(map[string]any); ok {
			return FormatRecords
		}
	}
	return f
}

func splitInts(s string) ([]any, error) {
	parts := strings.Split(s, ",")
	items := make([]any, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := parseDigits(strings.TrimPrefix(p, "-")); !ok {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrUnparsable, p)
		}
		items = append(items, p)
	}
	return items, nil
}

// literalToJSON rewrites a Python literal (lists, tuples, dicts, quoted strings, numbers,
// None/True/False) as JSON text.
func literalToJSON(s string) (string, error) {
	var out []string
	emit := func(tok string) { out = append(out, tok) }
	closeWith := func(tok string) {
		if len(out) > 0 && out[len(out)-1] == "," {
			out = out[:len(out)-1]
		}
		emit(tok)
	}
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '[' || c == '(':
			emit("[")
			i++
		case c == ']' || c == ')':
			closeWith("]")
			i++
		case c == '{':
			emit("{")
			i++
		case c == '}':
			closeWith("}")
			i++
		case c == ',' || c == ':':
			emit(string(c))
			i++
		case c == '\'' || c == '"':
			str, n, err := readQuoted(s[i:])
			if err != nil {
				return "", err
			}
			quoted, _ := json.Marshal(str)
			emit(string(quoted))
			i += n
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			j := i + 1
			for j < len(s) && strings.IndexByte("0123456789.eE+-_", s[j]) >= 0 {
				j++
			}
			emit(strings.ReplaceAll(strings.TrimPrefix(s[i:j], "+"), "_", ""))
			i = j
		default:
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			switch s[i:j] {
			case "None":
				emit("null")
			case "True":
				emit("true")
			case "False":
				emit("false")
			default:
				return "", fmt.Errorf("unexpected token at %d", i)
			}
			i = j
		}
	}
	return strings.Join(out, ""), nil
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// readQuoted reads a single- or double-quoted Python string at the start of s and
// returns its value and the number of bytes consumed.
func readQuoted(s string) (string, int, error) {
	quote := s[0]
	var b bytes.Buffer
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch c {
		case quote:
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(s) {
				return "", 0, fmt.Errorf("dangling escape")
			}
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string")
}
