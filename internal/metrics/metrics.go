// Package metrics holds the Prometheus collectors of the voice server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry. All Record methods
// are safe on a nil *Metrics so tests and tools can skip wiring.
type Metrics struct {
	registry *prometheus.Registry

	// Call metrics
	CallsActive   prometheus.Gauge
	CallsTotal    *prometheus.CounterVec
	CallDuration  prometheus.Histogram
	CallsRejected *prometheus.CounterVec

	// Turn metrics
	TurnsTotal    *prometheus.CounterVec
	TurnDuration  prometheus.Histogram
	RoutesTotal   *prometheus.CounterVec
	FramesDropped *prometheus.CounterVec

	// Agent metrics
	ToolCallsTotal      *prometheus.CounterVec
	VerificationsTotal  *prometheus.CounterVec
	EscalationsTotal    *prometheus.CounterVec
	ProviderErrorsTotal *prometheus.CounterVec
	ProviderDuration    *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequestsTotal *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicebank"
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		CallsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of calls in progress",
		}),
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Finished calls by status and end reason",
		}, []string{"status", "end_reason"}),
		CallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Call duration in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200},
		}),
		CallsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_rejected_total",
			Help:      "Connections refused before a call started",
		}, []string{"reason"}),
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Server turns by kind",
		}, []string{"kind"}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from inbound utterance to outbound turn",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}),
		RoutesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_total",
			Help:      "Router decisions by flow and stage",
		}, []string{"flow", "stage"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped or rejected",
		}, []string{"reason"}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool executions by tool and outcome",
		}, []string{"tool", "outcome"}),
		VerificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Identity checks by result",
		}, []string{"result"}),
		EscalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Escalations by flow",
		}, []string{"flow"}),
		ProviderErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "External provider failures by operation",
		}, []string{"op"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "External provider latency by operation",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"op"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		m.CallsActive,
		m.CallsTotal,
		m.CallDuration,
		m.CallsRejected,
		m.TurnsTotal,
		m.TurnDuration,
		m.RoutesTotal,
		m.FramesDropped,
		m.ToolCallsTotal,
		m.VerificationsTotal,
		m.EscalationsTotal,
		m.ProviderErrorsTotal,
		m.ProviderDuration,
		m.HTTPRequestsTotal,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests by matched route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func (m *Metrics) RecordCallStart() {
	if m == nil {
		return
	}
	m.CallsActive.Inc()
}

func (m *Metrics) RecordCallEnd(status, endReason string, d time.Duration) {
	if m == nil {
		return
	}
	m.CallsActive.Dec()
	if endReason == "" {
		endReason = "none"
	}
	m.CallsTotal.WithLabelValues(status, endReason).Inc()
	m.CallDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordCallRejected(reason string) {
	if m == nil {
		return
	}
	m.CallsRejected.WithLabelValues(reason).Inc()
}

// RecordTurn counts one outbound turn. kind is reply, escalation, end,
// pardon, nudge, greeting or fallback.
func (m *Metrics) RecordTurn(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(kind).Inc()
	if d > 0 {
		m.TurnDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) RecordRoute(flow, stage string) {
	if m == nil {
		return
	}
	m.RoutesTotal.WithLabelValues(flow, stage).Inc()
}

func (m *Metrics) RecordFrameDropped(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) RecordVerification(granted bool) {
	if m == nil {
		return
	}
	result := "failed"
	if granted {
		result = "granted"
	}
	m.VerificationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordEscalation(flow string) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(flow).Inc()
}

// RecordProvider observes one provider call; err marks it failed.
func (m *Metrics) RecordProvider(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ProviderDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.ProviderErrorsTotal.WithLabelValues(op).Inc()
	}
}
