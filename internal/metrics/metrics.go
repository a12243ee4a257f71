// Package metrics exposes report pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gastos"

// Metrics owns its registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	runs             *prometheus.CounterVec
	duration         prometheus.Histogram
	deliveryFailures *prometheus.CounterVec
	botCommands      *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_runs_total",
			Help:      "Monthly report runs by terminal state.",
		}, []string{"state"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_duration_seconds",
			Help:      "Wall time of report runs that passed the gate.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Failed Telegram calls by operation.",
		}, []string{"op"}),
		botCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_commands_total",
			Help:      "Webhook commands handled, by command.",
		}, []string{"command"}),
	}

	reg.MustRegister(
		m.runs,
		m.duration,
		m.deliveryFailures,
		m.botCommands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RunCompleted counts a run in state. Runs that never passed the gate pass
// a zero duration and are not observed in the histogram.
func (m *Metrics) RunCompleted(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(state).Inc()
	if d > 0 {
		m.duration.Observe(d.Seconds())
	}
}

func (m *Metrics) DeliveryFailed(op string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) CommandHandled(command string) {
	if m == nil {
		return
	}
	m.botCommands.WithLabelValues(command).Inc()
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
