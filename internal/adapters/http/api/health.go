package api

import (
	"context"
	"net/http"
	"time"
)

const defaultPingTimeout = 2 * time.Second

// HealthOption configures a HealthHandler.
type HealthOption func(*HealthHandler)

// WithPingTimeout bounds each store ping.
func WithPingTimeout(d time.Duration) HealthOption {
	return func(h *HealthHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithClock overrides the time source used in responses.
func WithClock(now func() time.Time) HealthOption {
	return func(h *HealthHandler) {
		if now != nil {
			h.now = now
		}
	}
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	pinger  Pinger
	timeout time.Duration
	now     func() time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(p Pinger, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{pinger: p, timeout: defaultPingTimeout, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleHealth handles GET /healthz. It answers 200 when the store responds
// and 503 otherwise.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeJSON(w, http.StatusMethodNotAllowed, healthResponse{
			Status:  "error",
			Error:   "method not allowed",
			Checked: timestamp(h.now()),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if h.pinger == nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  "unavailable",
			Error:   "tracking engine not configured",
			Checked: timestamp(h.now()),
		})
		return
	}
	if err := h.pinger.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  "unavailable",
			Error:   err.Error(),
			Checked: timestamp(h.now()),
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Checked: timestamp(h.now())})
}
