package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/collection"
	"github.com/Marvins20/ai-ethics-multiagents/internal/config"
	"github.com/Marvins20/ai-ethics-multiagents/internal/embedding"
	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
	"github.com/Marvins20/ai-ethics-multiagents/internal/rag"
)

const reportsCSV = `title,url,date_published
row2,http://r/2,2020
row3,http://r/3,2021
row4,http://r/4,2022
row5,http://r/5,2023
row6,http://r/6,2024
row7,http://r/7,2025
`

const risksCSV = `Title,Risk category,Risk subcategory,Description,Additional ev.
Algorithmic bias,Discrimination,Unfair outcomes,Models reproduce historical bias,
`

const incidentsCSV = `_id,incident_id,date,reports,title,description,Alleged deployer of AI system,Alleged developer of AI system,Alleged harmed or nearly harmed parties
a1,101,2024-02-14,"5,7",Chatbot invented refund policy,An airline chatbot promised a refund that did not exist,Air Canada,Unknown,Passengers
a2,102,2020-01-09,[9],Facial recognition wrongful arrest,Police relied on a face match,Detroit Police,DataWorks,Robert Williams
`

func testConfig(t *testing.T, withSources bool) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "db", "entries.db")
	cfg.Storage.ReportsDBPath = filepath.Join(dir, "db", "reports.db")
	cfg.Storage.IndexDir = filepath.Join(dir, "indices")
	cfg.Embedding.Dimensions = 4096
	cfg.Search.MinVectorScore = 0.5

	raw := filepath.Join(dir, "raw")
	require.NoError(t, os.MkdirAll(raw, 0755))
	cfg.Sources.Reports = filepath.Join(raw, "reports.csv")
	cfg.Sources.Risks = filepath.Join(raw, "ai_risk_database_v3.csv")
	cfg.Sources.Incidents = filepath.Join(raw, "incidents.csv")
	cfg.Sources.Framework = filepath.Join(raw, "framework.txt")
	if withSources {
		for path, content := range map[string]string{
			cfg.Sources.Reports:   reportsCSV,
			cfg.Sources.Risks:     risksCSV,
			cfg.Sources.Incidents: incidentsCSV,
			cfg.Sources.Framework: "Art. 1 Providers must assess risk before deployment.",
		} {
			require.NoError(t, os.WriteFile(path, []byte(content), 0600))
		}
	}
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestApp_IngestAndSearch(t *testing.T) {
	a := newApp(t, testConfig(t, true))
	ctx := context.Background()

	results, err := a.Ingest(ctx, "")
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		require.NoError(t, r.Err, r.Name)
	}

	risks, err := a.Risks.Search(ctx, "historical bias", 3)
	require.NoError(t, err)
	require.True(t, risks.Found())
	require.Contains(t, risks.Results[0].Entry.Content, "Algorithmic bias")

	incidents, err := a.Incidents.Search(ctx, "airline customer service", "chatbot refund", 1)
	require.NoError(t, err)
	require.Len(t, incidents.Results, 1)
	meta := incidents.Results[0].Entry.Metadata.(*models.IncidentMetadata)
	require.Equal(t, "Chatbot invented refund policy", meta.Title)
	require.Len(t, meta.ReportsDetails, 2)
	require.Equal(t, "row5", meta.ReportsDetails[0].Title)
	require.Equal(t, "row7", meta.ReportsDetails[1].Title)

	out, err := a.Tools.Call(ctx, rag.ToolSearchIncidents, map[string]any{
		"project_description": "airline customer service",
		"action":              "chatbot refund",
		"top_k":               1,
	})
	require.NoError(t, err)
	require.Contains(t, out, "Report: row5 (2023) http://r/5")
}

func TestApp_IngestIsOnceOnly(t *testing.T) {
	a := newApp(t, testConfig(t, true))
	ctx := context.Background()

	_, err := a.Ingest(ctx, "")
	require.NoError(t, err)
	results, err := a.Ingest(ctx, collection.Incidents)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Zero(t, results[0].Entries)

	st, err := a.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.Collections[collection.Incidents])

	_, err = a.Ingest(ctx, "nope")
	require.Error(t, err)
}

func TestApp_IncidentSearchReingestsWhenEmpty(t *testing.T) {
	cfg := testConfig(t, false)
	a := newApp(t, cfg)
	ctx := context.Background()

	answer, err := a.Incidents.Search(ctx, "airline", "chatbot refund", 1)
	require.NoError(t, err)
	require.Equal(t, rag.MsgRetrieverUnavailable, answer.Message)

	require.NoError(t, os.WriteFile(cfg.Sources.Incidents, []byte(incidentsCSV), 0600))
	answer, err = a.Incidents.Search(ctx, "airline", "chatbot refund", 1)
	require.NoError(t, err)
	require.True(t, answer.Found())
	// The record store was never loaded, so nothing resolves yet.
	require.Equal(t, 1, answer.Enrichment.Skipped)

	_, err = a.Risks.Search(ctx, "bias", 1)
	require.ErrorIs(t, err, rag.ErrRetrieverUnavailable)
}

func TestApp_Status(t *testing.T) {
	a := newApp(t, testConfig(t, true))
	ctx := context.Background()
	_, err := a.Ingest(ctx, "")
	require.NoError(t, err)

	st, err := a.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.Collections[collection.Risks])
	require.Equal(t, 2, st.Collections[collection.Incidents])
	require.Equal(t, 1, st.Collections[collection.Frameworks])
	require.Equal(t, 6, st.Reports)
	require.Equal(t, "closed", st.Breaker)
	require.Positive(t, st.DiskUsageBytes)
	require.Equal(t, 4096, st.Config["embedding_dimensions"])
}

func TestApp_WatchIngestsNewSource(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.Watch.Debounce = 20 * time.Millisecond
	a := newApp(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, a.Watch(ctx))
	st, err := a.Status(ctx)
	require.NoError(t, err)
	require.Len(t, st.WatchedSources, 4)

	require.NoError(t, os.WriteFile(cfg.Sources.Risks, []byte(risksCSV), 0600))
	require.Eventually(t, func() bool {
		answer, err := a.Risks.Search(ctx, "historical bias", 1)
		return err == nil && answer.Found()
	}, 5*time.Second, 25*time.Millisecond)
}

func TestApp_ServerRoutes(t *testing.T) {
	a := newApp(t, testConfig(t, true))
	_, err := a.Ingest(context.Background(), "")
	require.NoError(t, err)
	h := a.Server().Router()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/reports/resolve",
		strings.NewReader(`{"references":"[7, 5]"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	require.Less(t, strings.Index(w.Body.String(), "row7"), strings.Index(w.Body.String(), "row5"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"reports":6`)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "riskrag_ingest_entries_total")
}

func TestNewEmbedder_fallsBackToHash(t *testing.T) {
	e := newEmbedder(config.EmbeddingConfig{Provider: embedding.ProviderONNX, Dimensions: 64, MaxTokens: 16}, zap.NewNop())
	require.Equal(t, 64, e.Dimensions())
	v, err := e.Embed(context.Background(), "bias")
	require.NoError(t, err)
	require.Len(t, v, 64)
}
