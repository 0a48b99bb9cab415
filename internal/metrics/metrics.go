package metrics

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/fundsync/internal/realtime"
	"github.com/rickgao/fundsync/internal/watcher"
)

const namespace = "fundsync"

var statuses = []realtime.Status{
	realtime.StatusDisconnected,
	realtime.StatusConnecting,
	realtime.StatusConnected,
	realtime.StatusError,
}

// Metrics holds the process collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	connectionStatus  *prometheus.GaugeVec
	statusTransitions *prometheus.CounterVec
	channelEvents     *prometheus.CounterVec
	watcherDecisions  *prometheus.CounterVec
	refreshes         *prometheus.CounterVec
	polls             *prometheus.CounterVec
	httpInFlight      prometheus.Gauge
	httpRequests      *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		connectionStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "realtime",
				Name:      "connection_status",
				Help:      "1 for the current realtime connection status, 0 otherwise.",
			},
			[]string{"status"},
		),

		statusTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "realtime",
				Name:      "status_transitions_total",
				Help:      "Total number of realtime status notifications by status.",
			},
			[]string{"status"},
		),

		channelEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "realtime",
				Name:      "channel_events_total",
				Help:      "Total number of channel events handled.",
			},
			[]string{"event", "outcome"},
		),

		watcherDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "watcher",
				Name:      "decisions_total",
				Help:      "Total number of surface opens and closes.",
			},
			[]string{"kind", "decision"},
		),

		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "refresh",
				Name:      "completed_total",
				Help:      "Total number of current-user refreshes by result.",
			},
			[]string{"result"},
		),

		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "poller",
				Name:      "polls_total",
				Help:      "Total number of poll cycles by result.",
			},
			[]string{"result"},
		),

		httpInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "inflight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "path", "status"},
		),
	}

	m.Registry.MustRegister(
		m.connectionStatus,
		m.statusTransitions,
		m.channelEvents,
		m.watcherDecisions,
		m.refreshes,
		m.polls,
		m.httpInFlight,
		m.httpRequests,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	m.ConnectionStatus(realtime.StatusDisconnected, "")
	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ConnectionStatus records a status notification. It has the realtime.Listener
// signature so it can be registered directly.
func (m *Metrics) ConnectionStatus(status realtime.Status, _ string) {
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		m.connectionStatus.WithLabelValues(s.String()).Set(v)
	}
	m.statusTransitions.WithLabelValues(status.String()).Inc()
}

// ChannelEvent records a handled channel event.
func (m *Metrics) ChannelEvent(event, outcome string) {
	m.channelEvents.WithLabelValues(event, outcome).Inc()
}

// WatcherDecision records a surface open or close.
func (m *Metrics) WatcherDecision(kind watcher.Kind, d watcher.Decision) {
	m.watcherDecisions.WithLabelValues(string(kind), d.String()).Inc()
}

// RefreshResult records a completed refresh.
func (m *Metrics) RefreshResult(result string) {
	m.refreshes.WithLabelValues(result).Inc()
}

// PollResult records a poll cycle.
func (m *Metrics) PollResult(result string) {
	m.polls.WithLabelValues(result).Inc()
}

// InstrumentHandler wraps next with HTTP request metrics. Scrapes of the
// metrics path are not counted.
func (m *Metrics) InstrumentHandler(metricsPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == metricsPath {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			m.httpInFlight.Inc()
			defer m.httpInFlight.Dec()

			next.ServeHTTP(rec, r)

			m.httpRequests.WithLabelValues(
				strings.ToUpper(r.Method),
				canonicalPath(r.URL.Path),
				strconv.Itoa(rec.status),
			).Inc()
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// canonicalPath keeps label cardinality bounded to the first path segment.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	first, _, _ := strings.Cut(trimmed, "/")
	return "/" + first
}
