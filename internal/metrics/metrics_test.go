package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveReport(t *testing.T) {
	m := New()

	m.ObserveReport("premium", "completed", 2*time.Second)
	m.ObserveReport("premium", "completed", time.Second)
	m.ObserveReport("free", "failed", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReportsTotal.WithLabelValues("premium", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsTotal.WithLabelValues("free", "failed")))
}

func TestObserveLLMTokens(t *testing.T) {
	m := New()

	m.ObserveLLM("anthropic", "ok", 100, 20)
	m.ObserveLLM("anthropic", "error", 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("anthropic", "ok")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.LLMTokensTotal.WithLabelValues("anthropic", "input")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.LLMTokensTotal.WithLabelValues("anthropic", "output")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveReport("free", "completed", time.Second)
		m.ObserveLLM("openai", "ok", 1, 1)
		m.IncAnalysisRetry()
		m.ObserveDescription("hit")
		m.AddRefund(1)
		m.MarkStatsPopulated(time.Now())
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.AddRefund(3)
	m.ObserveDescription("fallback")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "vehiclereport_credits_refunded_total 3")
	assert.Contains(t, string(body), `vehiclereport_repair_description_lookups_total{result="fallback"} 1`)
}
