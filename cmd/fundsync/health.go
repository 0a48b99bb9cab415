package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rickgao/fundsync/internal/dispatch"
	"github.com/rickgao/fundsync/internal/metrics"
	"github.com/rickgao/fundsync/internal/poller"
)

// statusReport is the body of the /status endpoint.
type statusReport struct {
	Status   string          `json:"status"` // healthy, degraded or unhealthy
	Version  string          `json:"version"`
	Session  sessionReport   `json:"session"`
	Realtime *realtimeReport `json:"realtime,omitempty"`
	Dispatch *dispatch.Stats `json:"dispatch,omitempty"`
	Poller   poller.Stats    `json:"poller"`
	Watchers map[string]bool `json:"watchers"` // kind -> surface open
}

type sessionReport struct {
	SignedIn bool   `json:"signed_in"`
	Hydrated bool   `json:"hydrated"`
	UserID   string `json:"user_id,omitempty"`
}

type realtimeReport struct {
	Status         string `json:"status"`
	LastError      string `json:"last_error,omitempty"`
	SocketID       string `json:"socket_id,omitempty"`
	Bindings       int    `json:"bindings"`
	Subscribed     int    `json:"subscribed"`
	EventsReceived int64  `json:"events_received"`
	EventsPending  int    `json:"events_pending"`
	EventsDropped  int64  `json:"events_dropped"`
	Connects       int64  `json:"connects"`
}

// reporter produces a point-in-time status report.
type reporter interface {
	Report() statusReport
}

// newRouter builds the health and metrics HTTP handler.
func newRouter(rep reporter, m *metrics.Metrics, metricsPath string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(m.InstrumentHandler(metricsPath))

	r.Get("/healthz/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/healthz/ready", func(w http.ResponseWriter, r *http.Request) {
		report := rep.Report()
		code := http.StatusOK
		if report.Status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		_, _ = w.Write([]byte(report.Status))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		report := rep.Report()
		w.Header().Set("Content-Type", "application/json")
		if report.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})

	r.Handle(metricsPath, m.Handler())

	return r
}
