// Package cli renders command results for the terminal, as colored text or as JSON.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/Marvins20/ai-ethics-multiagents/internal/ingest"
	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
	"github.com/Marvins20/ai-ethics-multiagents/internal/rag"
	"github.com/Marvins20/ai-ethics-multiagents/internal/refs"
	"github.com/Marvins20/ai-ethics-multiagents/internal/search"
	"github.com/Marvins20/ai-ethics-multiagents/internal/server"
	"github.com/Marvins20/ai-ethics-multiagents/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// SnippetLength is how many runes of entry content text output shows.
const SnippetLength = 300

// ParseFormat accepts "text", "json" or empty (text).
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// Printer writes results to w in one format.
type Printer struct {
	w      io.Writer
	format OutputFormat

	heading *color.Color
	score   *color.Color
	faint   *color.Color
	warn    *color.Color
	bad     *color.Color
}

// NewPrinter creates a printer. noColor disables ANSI colors in text output.
func NewPrinter(w io.Writer, format OutputFormat, noColor bool) *Printer {
	p := &Printer{
		w:       w,
		format:  format,
		heading: color.New(color.Bold),
		score:   color.New(color.FgCyan),
		faint:   color.New(color.Faint),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.FgRed),
	}
	if noColor {
		for _, c := range []*color.Color{p.heading, p.score, p.faint, p.warn, p.bad} {
			c.DisableColor()
		}
	}
	return p
}

func (p *Printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Answer writes one tool answer.
func (p *Printer) Answer(a rag.Answer) error {
	if p.format == OutputJSON {
		return p.json(a)
	}
	p.answerText(a, "")
	return nil
}

func (p *Printer) answerText(a rag.Answer, indent string) {
	if !a.Found() {
		p.warn.Fprintf(p.w, "%s%s\n", indent, a.Message)
		return
	}
	for i, r := range a.Results {
		p.heading.Fprintf(p.w, "%s[%d] ", indent, i+1)
		if title := r.Entry.Title(); title != "" {
			p.heading.Fprint(p.w, title)
			fmt.Fprint(p.w, " ")
		}
		p.score.Fprintf(p.w, "(%.4f)", r.Score)
		p.faint.Fprintf(p.w, " %s\n", ranks(r))
		fmt.Fprintf(p.w, "%s    %s\n", indent, utils.OneLine(search.Highlight(r.Entry.Content, SnippetLength)))
		if meta, ok := r.Entry.Metadata.(*models.IncidentMetadata); ok {
			for _, rep := range meta.ReportsDetails {
				p.faint.Fprintf(p.w, "%s    Report: %s (%s) %s\n", indent, rep.Title, rep.DatePublished, rep.URL)
			}
		}
	}
	if a.Enrichment != nil {
		p.faint.Fprintf(p.w, "%sEnrichment: %s\n", indent, a.Enrichment)
	}
}

func ranks(r models.ScoredEntry) string {
	var parts []string
	if r.LexicalRank > 0 {
		parts = append(parts, fmt.Sprintf("lexical #%d", r.LexicalRank))
	}
	if r.VectorRank > 0 {
		parts = append(parts, fmt.Sprintf("vector #%d", r.VectorRank))
	}
	return strings.Join(parts, ", ")
}

type actionJSON struct {
	Action string     `json:"action"`
	Answer rag.Answer `json:"answer"`
	Error  string     `json:"error,omitempty"`
}

// ActionResults writes the answers for several actions of one project.
func (p *Printer) ActionResults(results []rag.ActionResult) error {
	if p.format == OutputJSON {
		out := make([]actionJSON, len(results))
		for i, r := range results {
			out[i] = actionJSON{Action: r.Action, Answer: r.Answer}
			if r.Err != nil {
				out[i].Error = r.Err.Error()
			}
		}
		return p.json(out)
	}
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		p.heading.Fprintf(p.w, "Action: %s\n", r.Action)
		if r.Err != nil {
			p.bad.Fprintf(p.w, "  error: %v\n", r.Err)
			continue
		}
		p.answerText(r.Answer, "  ")
	}
	return nil
}

// Reports writes resolved report records, labeled with their reference numbers.
func (p *Printer) Reports(reports []models.Report) error {
	if p.format == OutputJSON {
		if reports == nil {
			reports = []models.Report{}
		}
		return p.json(reports)
	}
	if len(reports) == 0 {
		p.warn.Fprintln(p.w, "No reports found.")
		return nil
	}
	for _, r := range reports {
		p.score.Fprintf(p.w, "#%d ", refs.ToReference(r.Offset))
		p.heading.Fprint(p.w, utils.Truncate(r.Title, 100))
		if r.DatePublished != "" {
			p.faint.Fprintf(p.w, " (%s)", r.DatePublished)
		}
		fmt.Fprintln(p.w)
		if r.URL != "" {
			fmt.Fprintf(p.w, "    %s\n", r.URL)
		}
	}
	return nil
}

// IngestResults writes one line per loader.
func (p *Printer) IngestResults(results []ingest.Result) error {
	if p.format == OutputJSON {
		type row struct {
			ingest.Result
			Error string `json:"error,omitempty"`
		}
		out := make([]row, len(results))
		for i, r := range results {
			out[i] = row{Result: r}
			if r.Err != nil {
				out[i].Error = r.Err.Error()
			}
		}
		return p.json(out)
	}
	for _, r := range results {
		fmt.Fprintf(p.w, "%-10s %-22s ", r.Name, r.Collection)
		if r.Err != nil {
			p.bad.Fprintf(p.w, "failed: %v\n", r.Err)
			continue
		}
		p.score.Fprintf(p.w, "%d entries\n", r.Entries)
	}
	return nil
}

// Status writes the service status.
func (p *Printer) Status(st server.Status) error {
	if p.format == OutputJSON {
		return p.json(st)
	}
	p.heading.Fprintln(p.w, "Collections")
	names := make([]string, 0, len(st.Collections))
	for name := range st.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(p.w, "  %-22s %d\n", name, st.Collections[name])
	}
	fmt.Fprintf(p.w, "Reports: %d\n", st.Reports)
	if st.Breaker != "" {
		fmt.Fprintf(p.w, "Record store breaker: %s\n", st.Breaker)
	}
	if st.DiskUsageBytes > 0 {
		fmt.Fprintf(p.w, "Disk usage: %s\n", FormatBytes(st.DiskUsageBytes))
	}
	if len(st.WatchedSources) > 0 {
		p.heading.Fprintln(p.w, "Watched sources")
		for _, s := range st.WatchedSources {
			fmt.Fprintf(p.w, "  %s\n", s)
		}
	}
	return nil
}

// Tools writes the tool list.
func (p *Printer) Tools(specs []rag.ToolSpec) error {
	if p.format == OutputJSON {
		return p.json(specs)
	}
	for _, s := range specs {
		p.heading.Fprintln(p.w, s.Name)
		fmt.Fprintf(p.w, "  %s\n", s.Description)
		params := make([]string, 0, len(s.Params))
		for name := range s.Params {
			params = append(params, name)
		}
		sort.Strings(params)
		for _, name := range params {
			p.faint.Fprintf(p.w, "    %s: %s\n", name, s.Params[name])
		}
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
