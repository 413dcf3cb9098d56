// Package api exposes the operational HTTP surface of the tracking engine:
// a health check and the Prometheus scrape endpoint.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/crosscam/pkg/metrics"
)

// Pinger reports whether the tracking engine can reach its store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP routes for the operational API.
type Server struct {
	healthHandler *HealthHandler
}

// NewServer creates a new API server backed by p.
func NewServer(p Pinger, opts ...HealthOption) *Server {
	return &Server{healthHandler: NewHealthHandler(p, opts...)}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
}

type healthResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Checked string `json:"checked_at"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
