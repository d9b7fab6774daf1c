package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health responds with status 200 when the service and its store are
// reachable. db may be nil for the in-memory store.
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		}
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				payload["status"] = "degraded"
				payload["error"] = "database unreachable"
				writeJSON(w, http.StatusServiceUnavailable, payload)
				return
			}
		}
		writeJSON(w, http.StatusOK, payload)
	}
}
