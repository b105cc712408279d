package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
)

const readinessTimeout = 2 * time.Second

type pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a plain function to a readiness check.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

type dependency struct {
	name string
	ping pinger
}

type HealthHandler struct {
	deps []dependency
}

// NewHealthHandler always checks the database. Redis is checked only when
// configured.
func NewHealthHandler(db pinger, redis pinger) *HealthHandler {
	h := &HealthHandler{deps: []dependency{{name: "database", ping: db}}}
	if redis != nil {
		h.deps = append(h.deps, dependency{name: "redis", ping: redis})
	}
	return h
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(h.deps))
	for _, d := range h.deps {
		if err := d.ping.PingContext(ctx); err != nil {
			logging.FromContext(ctx).Warn("readiness check failed", "dependency", d.name, "error", err)
			checks[d.name] = "down"
			status, code = "down", http.StatusServiceUnavailable
			continue
		}
		checks[d.name] = "ok"
	}

	RespondJSON(w, code, map[string]any{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
