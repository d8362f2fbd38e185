package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kiranshivaraju/reviewpulse/internal/api/response"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is a dependency that can report its connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /health. It reports
// 503 when any named dependency fails its ping.
func NewHealthHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		healthy := true
		for name, p := range deps {
			if err := p.Ping(ctx); err != nil {
				checks[name] = "unavailable"
				healthy = false
				continue
			}
			checks[name] = "ok"
		}

		if !healthy {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED", "One or more services degraded", checks)
			return
		}
		response.JSON(w, map[string]any{"status": "ok", "services": checks})
	}
}
