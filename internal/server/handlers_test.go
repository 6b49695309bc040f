package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Marvins20/ai-ethics-multiagents/internal/collection"
	"github.com/Marvins20/ai-ethics-multiagents/internal/config"
	"github.com/Marvins20/ai-ethics-multiagents/internal/embedding"
	"github.com/Marvins20/ai-ethics-multiagents/internal/enrich"
	"github.com/Marvins20/ai-ethics-multiagents/internal/ingest"
	"github.com/Marvins20/ai-ethics-multiagents/internal/metrics"
	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
	"github.com/Marvins20/ai-ethics-multiagents/internal/rag"
	"github.com/Marvins20/ai-ethics-multiagents/internal/refs"
	"github.com/Marvins20/ai-ethics-multiagents/internal/search"
	"github.com/Marvins20/ai-ethics-multiagents/internal/storage"
	"go.uber.org/zap"
)

type reportStore map[int]models.Report

func (s reportStore) FetchByOffsets(_ context.Context, offsets []int) []models.Report {
	var out []models.Report
	for _, off := range offsets {
		if r, ok := s[off]; ok {
			out = append(out, r)
		}
	}
	return out
}

type mockIngester struct {
	calls   []string
	results []ingest.Result
	err     error
}

func (m *mockIngester) Ingest(_ context.Context, name string) ([]ingest.Result, error) {
	m.calls = append(m.calls, name)
	return m.results, m.err
}

type mockStatus struct{ st Status }

func (m mockStatus) Status(context.Context) (Status, error) { return m.st, nil }

type panickingIncidents struct{}

func (panickingIncidents) Search(context.Context, string, string, int) (rag.Answer, error) {
	panic("boom")
}

func (panickingIncidents) SearchActions(context.Context, string, []string, int) []rag.ActionResult {
	panic("boom")
}

// newTestServer builds a server over real collections holding one risk and two incidents.
func newTestServer(t *testing.T, populate bool) (*Server, *metrics.Metrics) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	reg := collection.NewRegistry(store, embedding.NewHashEmbedder(4096))
	t.Cleanup(func() { _ = reg.Close() })

	ctx := context.Background()
	if populate {
		risks, _ := reg.Get(ctx, collection.Risks)
		if err := risks.Add(ctx, []models.Entry{
			{ID: "bias", Content: "Title: Algorithmic bias in hiring", Metadata: &models.RiskMetadata{Title: "Algorithmic bias"}},
		}); err != nil {
			t.Fatal(err)
		}
		incidents, _ := reg.Get(ctx, collection.Incidents)
		if err := incidents.Add(ctx, []models.Entry{
			{ID: "bot", Content: "title: Chatbot invented refund policy", Metadata: &models.IncidentMetadata{Title: "Chatbot invented refund policy", Reports: "5,7"}},
			{ID: "face", Content: "title: Facial recognition wrongful arrest", Metadata: &models.IncidentMetadata{Title: "Facial recognition wrongful arrest", Reports: "[9]"}},
		}); err != nil {
			t.Fatal(err)
		}
	}

	m := metrics.New()
	resolver := refs.NewResolver(reportStore{
		3: {Offset: 3, Title: "row5"},
		5: {Offset: 5, Title: "row7"},
	})
	opts := []rag.Option{rag.WithMetrics(m), rag.WithSearchOptions(search.WithMinVectorScore(0.5))}
	risks := rag.NewRiskRAG(reg, opts...)
	incidents := rag.NewIncidentRAG(reg, enrich.New(resolver), nil, opts...)
	srv := NewServer(Deps{
		Risks:     risks,
		Incidents: incidents,
		Resolver:  resolver,
		Tools:     rag.NewToolbox(risks, incidents),
		Metrics:   m,
	}, &config.ServerConfig{Port: 8080}, &config.SearchConfig{DefaultTopK: 5, MaxTopK: 10}, zap.NewNop())
	return srv, m
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandleSearchRisks(t *testing.T) {
	srv, _ := newTestServer(t, true)
	w := do(t, srv.Router(), http.MethodPost, "/api/v1/risks/search", `{"query":"bias","top_k":3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out struct {
		Results []struct {
			Entry struct {
				ID string `json:"id"`
			} `json:"entry"`
		} `json:"results"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 1 || out.Results[0].Entry.ID != "bias" {
		t.Errorf("results: got %+v", out.Results)
	}
}

func TestHandleSearchRisks_Unavailable(t *testing.T) {
	srv, _ := newTestServer(t, false)
	w := do(t, srv.Router(), http.MethodPost, "/api/v1/risks/search", `{"query":"bias"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d", w.Code)
	}
	var out rag.Answer
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Message != rag.MsgRetrieverUnavailable {
		t.Errorf("message: got %q", out.Message)
	}
}

func TestHandleSearchRisks_BadRequest(t *testing.T) {
	srv, _ := newTestServer(t, true)
	for _, body := range []string{`not json`, `{"query":"   "}`} {
		w := do(t, srv.Router(), http.MethodPost, "/api/v1/risks/search", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: got status %d", body, w.Code)
		}
	}
}

func TestHandleSearchIncidents_Enriched(t *testing.T) {
	srv, _ := newTestServer(t, true)
	w := do(t, srv.Router(), http.MethodPost, "/api/v1/incidents/search",
		`{"project_description":"online retail shop","action":"chatbot refund","top_k":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out struct {
		Results []struct {
			Entry struct {
				ID       string `json:"id"`
				Metadata struct {
					ReportsDetails []models.Report `json:"reports_details"`
				} `json:"metadata"`
			} `json:"entry"`
		} `json:"results"`
		Enrichment *enrich.Summary `json:"enrichment"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 1 || out.Results[0].Entry.ID != "bot" {
		t.Fatalf("results: got %+v", out.Results)
	}
	details := out.Results[0].Entry.Metadata.ReportsDetails
	if len(details) != 2 || details[0].Title != "row5" || details[1].Title != "row7" {
		t.Errorf("reports_details: got %+v", details)
	}
	if out.Enrichment == nil || out.Enrichment.Enriched != 1 {
		t.Errorf("enrichment: got %+v", out.Enrichment)
	}
}

func TestHandleSearchIncidents_Actions(t *testing.T) {
	srv, _ := newTestServer(t, true)
	w := do(t, srv.Router(), http.MethodPost, "/api/v1/incidents/search",
		`{"project_description":"online retail shop","actions":["chatbot refund","weather forecast"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	// Metadata is an interface, so answers are decoded loosely.
	var out struct {
		Results []struct {
			Action string `json:"action"`
			Answer struct {
				Results []json.RawMessage `json:"results"`
				Message string            `json:"message"`
			} `json:"answer"`
			Error string `json:"error"`
		} `json:"results"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("results: got %d", len(out.Results))
	}
	if out.Results[0].Action != "chatbot refund" || len(out.Results[0].Answer.Results) == 0 {
		t.Errorf("first action should find the chatbot incident: %+v", out.Results[0])
	}
	if out.Results[1].Answer.Message != rag.MsgNoIncidents {
		t.Errorf("second action message: got %q", out.Results[1].Answer.Message)
	}
}

func TestHandleSearchIncidents_MissingDescription(t *testing.T) {
	srv, _ := newTestServer(t, true)
	w := do(t, srv.Router(), http.MethodPost, "/api/v1/incidents/search", `{"action":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleSearchIncidents_PanicRecovered(t *testing.T) {
	srv := NewServer(Deps{Incidents: panickingIncidents{}}, &config.ServerConfig{}, nil, nil)
	w := do(t, srv.Router(), http.MethodPost, "/api/v1/incidents/search", `{"project_description":"p","action":"a"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleResolveReports(t *testing.T) {
	srv, _ := newTestServer(t, true)
	tests := []struct {
		name   string
		body   string
		code   int
		titles []string
		format refs.ListFormat
	}{
		{"csv string", `{"references":"7, 5"}`, http.StatusOK, []string{"row7", "row5"}, refs.FormatCSV},
		{"literal string", `{"references":"['5', 7]"}`, http.StatusOK, []string{"row5", "row7"}, refs.FormatLiteral},
		{"json array", `{"references":[5, "7", 5, -1]}`, http.StatusOK, []string{"row5", "row7"}, refs.FormatJSON},
		{"below header", `{"references":"0,1"}`, http.StatusOK, nil, refs.FormatCSV},
		{"unparsable", `{"references":"five, seven"}`, http.StatusBadRequest, nil, ""},
		{"missing", `{}`, http.StatusBadRequest, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv.Router(), http.MethodPost, "/api/v1/reports/resolve", tt.body)
			if w.Code != tt.code {
				t.Fatalf("status: got %d want %d, body %s", w.Code, tt.code, w.Body.String())
			}
			if tt.code != http.StatusOK {
				return
			}
			var out struct {
				Format  refs.ListFormat `json:"format"`
				Count   int             `json:"count"`
				Reports []models.Report `json:"reports"`
			}
			if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
				t.Fatal(err)
			}
			if out.Format != tt.format {
				t.Errorf("format: got %q want %q", out.Format, tt.format)
			}
			if out.Count != len(tt.titles) || len(out.Reports) != len(tt.titles) {
				t.Fatalf("count: got %d want %d", out.Count, len(tt.titles))
			}
			for i, title := range tt.titles {
				if out.Reports[i].Title != title {
					t.Errorf("report %d: got %q want %q", i, out.Reports[i].Title, title)
				}
			}
		})
	}
}

func TestHandleResolveReports_NoStore(t *testing.T) {
	srv := NewServer(Deps{Resolver: refs.NewResolver(nil)}, &config.ServerConfig{}, nil, nil)
	w := do(t, srv.Router(), http.MethodPost, "/api/v1/reports/resolve", `{"references":"5"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleTools(t *testing.T) {
	srv, _ := newTestServer(t, true)
	h := srv.Router()

	w := do(t, h, http.MethodGet, "/api/v1/tools", "")
	var list struct {
		Tools []rag.ToolSpec `json:"tools"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Tools) != 2 || list.Tools[0].Name != rag.ToolSearchIncidents {
		t.Errorf("tools: got %+v", list.Tools)
	}

	w = do(t, h, http.MethodPost, "/api/v1/tools/search_risks", `{"query":"bias","top_k":2}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Algorithmic bias in hiring") {
		t.Errorf("search_risks: got %d %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodPost, "/api/v1/tools/summarize", `{}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Tool summarize not found") {
		t.Errorf("unknown tool: got %d %s", w.Code, w.Body.String())
	}
}

func TestHandleIngest(t *testing.T) {
	ing := &mockIngester{results: []ingest.Result{
		{Name: "risks", Collection: collection.Risks, Entries: 4},
		{Name: "framework", Collection: collection.Frameworks, Err: errors.New("bad pdf")},
	}}
	srv := NewServer(Deps{Ingest: ing}, &config.ServerConfig{}, nil, nil)
	h := srv.Router()

	w := do(t, h, http.MethodPost, "/api/v1/ingest", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Results []ingestResponse `json:"results"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 2 || out.Results[0].Entries != 4 || out.Results[1].Error != "bad pdf" {
		t.Errorf("results: got %+v", out.Results)
	}

	do(t, h, http.MethodPost, "/api/v1/ingest", `{"collection":"incidents_database"}`)
	if len(ing.calls) != 2 || ing.calls[0] != "" || ing.calls[1] != collection.Incidents {
		t.Errorf("calls: got %q", ing.calls)
	}

	ing.results, ing.err = nil, errors.New("no loader for collection nope")
	w = do(t, h, http.MethodPost, "/api/v1/ingest", `{"collection":"nope"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown collection status: got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv := NewServer(Deps{Status: mockStatus{st: Status{
		Collections: map[string]int{collection.Risks: 3},
		Reports:     10,
		Breaker:     "closed",
	}}}, &config.ServerConfig{}, nil, nil)
	w := do(t, srv.Router(), http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out Status
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Reports != 10 || out.Collections[collection.Risks] != 3 || out.Breaker != "closed" {
		t.Errorf("status: got %+v", out)
	}
}

func TestNotImplemented(t *testing.T) {
	srv := NewServer(Deps{}, &config.ServerConfig{}, nil, nil)
	h := srv.Router()
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/risks/search"},
		{http.MethodPost, "/api/v1/incidents/search"},
		{http.MethodPost, "/api/v1/reports/resolve"},
		{http.MethodGet, "/api/v1/tools"},
		{http.MethodPost, "/api/v1/ingest"},
		{http.MethodGet, "/api/v1/status"},
	} {
		w := do(t, h, tc.method, tc.path, `{}`)
		if w.Code != http.StatusNotImplemented {
			t.Errorf("%s %s: got %d", tc.method, tc.path, w.Code)
		}
	}
	if w := do(t, h, http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("/metrics without metrics: got %d", w.Code)
	}
}

func TestHandleHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, true)
	h := srv.Router()
	if w := do(t, h, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("/health: got %d", w.Code)
	}
	do(t, h, http.MethodPost, "/api/v1/risks/search", `{"query":"bias"}`)
	w := do(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "riskrag_search_requests_total") {
		t.Errorf("metrics output missing search counter")
	}
}

func TestTopK(t *testing.T) {
	srv := NewServer(Deps{}, &config.ServerConfig{}, &config.SearchConfig{DefaultTopK: 4, MaxTopK: 8}, nil)
	for in, want := range map[int]int{0: 4, -2: 4, 3: 3, 8: 8, 100: 8} {
		if got := srv.topK(in); got != want {
			t.Errorf("topK(%d): got %d want %d", in, got, want)
		}
	}
}
