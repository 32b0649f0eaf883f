// Package metrics exposes Prometheus metrics for the voice gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter

	TurnsTotal   *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec

	InterruptsTotal            prometheus.Counter
	ToolCallsTotal             *prometheus.CounterVec
	TranscriptionFailuresTotal prometheus.Counter
	GenerationFailuresTotal    prometheus.Counter
}

// New creates a Metrics instance with all metrics registered on a private
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicegate"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of live voice sessions",
	})
	sessionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Total number of voice sessions started",
	})
	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of classified utterances",
		},
		[]string{"intent"},
	)
	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Duration from accepted transcript to turn completion",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"intent"},
	)
	interruptsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interrupts_total",
		Help:      "Total number of generation streams halted by interrupt",
	})
	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of confirmed tool webhook calls",
		},
		[]string{"status"},
	)
	transcriptionFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcription_failures_total",
		Help:      "Total number of failed or discarded transcriptions",
	})
	generationFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_failures_total",
		Help:      "Total number of generation backend failures",
	})

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		sessionsActive,
		sessionsTotal,
		turnsTotal,
		turnDuration,
		interruptsTotal,
		toolCallsTotal,
		transcriptionFailures,
		generationFailures,
	)

	return &Metrics{
		registry:                   registry,
		SessionsActive:             sessionsActive,
		SessionsTotal:              sessionsTotal,
		TurnsTotal:                 turnsTotal,
		TurnDuration:               turnDuration,
		InterruptsTotal:            interruptsTotal,
		ToolCallsTotal:             toolCallsTotal,
		TranscriptionFailuresTotal: transcriptionFailures,
		GenerationFailuresTotal:    generationFailures,
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTurn records one completed turn.
func (m *Metrics) ObserveTurn(intent string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(intent).Inc()
	m.TurnDuration.WithLabelValues(intent).Observe(elapsed.Seconds())
}
