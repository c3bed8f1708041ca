// Package metrics exposes report pipeline counters on a private prometheus registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vehiclereport"

type Metrics struct {
	registry *prometheus.Registry

	ReportsTotal       *prometheus.CounterVec
	ReportDuration     *prometheus.HistogramVec
	LLMRequestsTotal   *prometheus.CounterVec
	LLMTokensTotal     *prometheus.CounterVec
	AnalysisRetries    prometheus.Counter
	DescriptionLookups *prometheus.CounterVec
	CreditsRefunded    prometheus.Counter
	StatsPopulated     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ReportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Reports processed by tier and final status.",
		}, []string{"tier", "status"}),
		ReportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_generation_seconds",
			Help:      "Time spent generating a report.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"tier"}),
		LLMRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Text generation calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		LLMTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by provider and direction.",
		}, []string{"provider", "direction"}),
		AnalysisRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "premium_analysis_retries_total",
			Help:      "Premium analysis attempts retried after a failed or malformed response.",
		}),
		DescriptionLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repair_description_lookups_total",
			Help:      "Repair description lookups by result (cached, generated, fallback).",
		}, []string{"result"}),
		CreditsRefunded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_refunded_total",
			Help:      "Credits returned to users after failed premium reports.",
		}),
		StatsPopulated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stats_last_populated_timestamp_seconds",
			Help:      "Unix time of the last successful statistics population.",
		}),
	}
	m.registry.MustRegister(
		m.ReportsTotal,
		m.ReportDuration,
		m.LLMRequestsTotal,
		m.LLMTokensTotal,
		m.AnalysisRetries,
		m.DescriptionLookups,
		m.CreditsRefunded,
		m.StatsPopulated,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveReport(tier, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ReportsTotal.WithLabelValues(tier, status).Inc()
	m.ReportDuration.WithLabelValues(tier).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveLLM(provider, outcome string, inputTokens, outputTokens int64) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(provider, outcome).Inc()
	if inputTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) IncAnalysisRetry() {
	if m == nil {
		return
	}
	m.AnalysisRetries.Inc()
}

func (m *Metrics) ObserveDescription(result string) {
	if m == nil {
		return
	}
	m.DescriptionLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) AddRefund(credits int) {
	if m == nil {
		return
	}
	m.CreditsRefunded.Add(float64(credits))
}

func (m *Metrics) MarkStatsPopulated(at time.Time) {
	if m == nil {
		return
	}
	m.StatsPopulated.Set(float64(at.Unix()))
}
