package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposition(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.ObserveAPI("GET", "/api/v1/compounds", "200", 15*time.Millisecond)
	m.ObserveStoreOperation("Compound.Store.Update", "conflict", time.Millisecond)
	m.IncStoreConflict("Compound.Store.Update")
	m.ObservePrediction("solubility", "done", "", 2)
	m.ObserveModelCall("solubility", "heuristic", "ok", time.Millisecond)
	m.ObserveExternalCall("mlflow", "create_run", "ok", 20*time.Millisecond)
	m.IncSecurityEvent("")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`compoundlab_http_requests_total{method="GET",route="/api/v1/compounds",status="200"} 1`,
		`compoundlab_store_conflicts_total{op="Compound.Store.Update"} 1`,
		`compoundlab_predictions_total{model_type="solubility",reason="",status="done"} 1`,
		`compoundlab_external_calls_total{op="create_run",service="mlflow",status="ok"} 1`,
		`compoundlab_security_events_total{event="unknown"} 1`,
	} {
		assert.True(t, strings.Contains(out, want), "missing %s", want)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAPI("GET", "", "200", time.Millisecond)
		m.ApiInflightInc()
		m.ApiInflightDec()
		m.ObserveStoreOperation("op", "ok", time.Millisecond)
		m.IncStoreConflict("op")
		m.IncStoreRetry("op")
		m.ObservePrediction("toxicity", "failed", "timeout", 3)
		m.ObserveModelCall("toxicity", "heuristic", "timeout", time.Second)
		m.IncQueueDropped()
		m.ObserveExternalCall("chembl", "molecule", "error", time.Second)
		m.IncSecurityEvent("auth_failed")
	})
	assert.Nil(t, m.Registry())
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc , broken, =x, team=chem ")
	assert.Equal(t, map[string]string{"api-key": "abc", "team": "chem"}, got)
	assert.Nil(t, ParseHeaders(""))
}
