package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "pagedriver"

var (
	// CommandsTotal counts actor commands by name and outcome ("ok", "error", "panic").
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "commands_total",
		Help:      "Commands served by page actors.",
	}, []string{"command", "outcome"})

	// CommandDuration observes how long each command held the worker.
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "command_duration_seconds",
		Help:      "Time spent executing page commands on the worker.",
		Buckets:   []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"command"})

	PagesOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "pages_open",
		Help:      "Pages currently held in session tables.",
	})

	RendererPumps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "renderer_pumps_total",
		Help:      "Renderer event loop iterations.",
	})

	// WaitTimeouts counts soft-failed waits by kind ("load", "selector", ...).
	WaitTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "wait_timeouts_total",
		Help:      "Waits that reached their deadline.",
	}, []string{"kind"})
)

// ObserveCommand records one finished command.
func ObserveCommand(name, outcome string, elapsed time.Duration) {
	CommandsTotal.WithLabelValues(name, outcome).Inc()
	CommandDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// MetricsHandler serves the default registry.
func MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
