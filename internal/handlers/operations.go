package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/PortNumber53/resto-entitlements/internal/models"
	"github.com/PortNumber53/resto-entitlements/internal/sweeper"
)

// SweepRunner runs one expiration sweep.
type SweepRunner interface {
	Run(ctx context.Context) *sweeper.Report
}

// EventLister reads the audit trail.
type EventLister interface {
	Recent(ctx context.Context, filter models.EventFilter) ([]models.SubscriptionEvent, error)
}

// RunSweep triggers an expiration sweep and returns its report.
func RunSweep(runner SweepRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, runner.Run(r.Context()))
	}
}

// ListEvents returns recent subscription events, optionally for one
// restaurant and event type.
func ListEvents(events EventLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := models.EventFilter{EventType: models.EventType(q.Get("event_type"))}

		if raw := q.Get("restaurant_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				writeMessage(w, http.StatusBadRequest, "invalid restaurant_id")
				return
			}
			filter.RestaurantID = &id
		}
		if raw := q.Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				writeMessage(w, http.StatusBadRequest, "invalid limit")
				return
			}
			filter.Limit = limit
		}

		list, err := events.Recent(r.Context(), filter)
		if err != nil {
			writeError(w, r, "list events", err)
			return
		}
		if list == nil {
			list = []models.SubscriptionEvent{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": list})
	}
}

// SchedulerStats exposes the periodic sweep statistics.
type SchedulerStats interface {
	Stats() sweeper.Stats
}

// SweeperStatus reports whether periodic sweeping is enabled and its
// cumulative statistics.
func SweeperStatus(scheduler SchedulerStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if scheduler == nil {
			writeJSON(w, http.StatusOK, map[string]any{"scheduled": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"scheduled": true, "stats": scheduler.Stats()})
	}
}
