package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSearch("c", "hit", time.Millisecond)
	m.ObserveEnrichment("enriched", "")
	m.ObserveReportFetch("ok", 3)
	m.AddIngested("c", 2)
	m.ObserveRetrieverBuild("c", "built")
	require.Nil(t, m.Registry())
	require.NotNil(t, m.Handler())
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.ObserveSearch("incidents_database", "hit", 10*time.Millisecond)
	m.ObserveSearch("incidents_database", "hit", 5*time.Millisecond)
	m.ObserveReportFetch("error", 0)
	m.AddIngested("ai_risk_database_v3", 4)
	m.AddIngested("ai_risk_database_v3", 0)

	require.Equal(t, 2.0, testutil.ToFloat64(m.searchTotal.WithLabelValues("incidents_database", "hit")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.reportFetchTotal.WithLabelValues("error")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.ingestEntries.WithLabelValues("ai_risk_database_v3")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "riskrag_search_requests_total"))
}
