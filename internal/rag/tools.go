package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Tool names understood by Toolbox.Call.
const (
	ToolSearchRisks     = "search_risks"
	ToolSearchIncidents = "search_incidents"
)

// ToolSpec describes a tool to a caller choosing between them.
type ToolSpec struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Params      map[string]string `json:"params"`
}

// Toolbox dispatches tool calls by name.
type Toolbox struct {
	risks     *RiskRAG
	incidents *IncidentRAG
}

// NewToolbox creates a toolbox over the two search tools. Either may be nil.
func NewToolbox(risks *RiskRAG, incidents *IncidentRAG) *Toolbox {
	return &Toolbox{risks: risks, incidents: incidents}
}

// Tools lists the available tools, sorted by name.
func (t *Toolbox) Tools() []ToolSpec {
	var specs []ToolSpec
	if t.incidents != nil {
		specs = append(specs, ToolSpec{
			Name:        ToolSearchIncidents,
			Description: "Search for AI incidents based on the project description and a specific action. Results include the reports linked to each incident.",
			Params: map[string]string{
				"project_description": "The description of the AI project.",
				"action":              "The specific action being analyzed for risks.",
				"top_k":               "The number of top results to return.",
			},
		})
	}
	if t.risks != nil {
		specs = append(specs, ToolSpec{
			Name:        ToolSearchRisks,
			Description: "Search for AI risks in the risk database.",
			Params: map[string]string{
				"query": "The search query describing the risk or topic to look for.",
				"top_k": "The number of top results to return.",
			},
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Call runs the named tool with args and returns its text output. An unknown tool is not
// an error: the returned text asks the caller to pick a valid tool.
func (t *Toolbox) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	topK := intArg(args, "top_k", 5)
	switch {
	case name == ToolSearchRisks && t.risks != nil:
		answer, err := t.risks.Search(ctx, stringArg(args, "query"), topK)
		return answer.String(), err
	case name == ToolSearchIncidents && t.incidents != nil:
		answer, err := t.incidents.Search(ctx, stringArg(args, "project_description"), stringArg(args, "action"), topK)
		return answer.String(), err
	}
	return fmt.Sprintf("Tool %s not found. Please Retry and Select a valid tool from the list of available tools.", name), nil
}

func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == math.Trunc(v) && v > 0 {
			return int(v)
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
