// Package audit appends SubscriptionEvents. Recording never fails the
// caller: storage errors are logged and counted, then dropped.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/resto-entitlements/internal/clock"
	"github.com/PortNumber53/resto-entitlements/internal/metrics"
	"github.com/PortNumber53/resto-entitlements/internal/models"
)

// appendTimeout bounds a single event write so a slow store cannot stall
// the operation being audited.
const appendTimeout = 5 * time.Second

// EventStore persists audit events.
type EventStore interface {
	AppendEvent(ctx context.Context, e *models.SubscriptionEvent) error
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.SubscriptionEvent, error)
}

// Recorder writes audit events.
type Recorder struct {
	store   EventStore
	clock   clock.Clock
	metrics *metrics.Metrics
}

// NewRecorder creates a Recorder. A nil clock uses the system time.
func NewRecorder(store EventStore, clk clock.Clock, m *metrics.Metrics) *Recorder {
	if clk == nil {
		clk = clock.Real()
	}
	return &Recorder{store: store, clock: clk, metrics: m}
}

// Record appends an event for restaurantID. It never returns an error.
func (r *Recorder) Record(ctx context.Context, restaurantID int64, eventType models.EventType, data models.JSONB) {
	if r == nil || r.store == nil {
		return
	}

	event := &models.SubscriptionEvent{
		RestaurantID: restaurantID,
		EventType:    eventType,
		EventData:    data,
		CreatedAt:    r.clock.Now(),
	}
	if event.EventData == nil {
		event.EventData = models.JSONB{}
	}

	// The audited operation may already have committed; a cancelled
	// request context must not drop its event.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
	defer cancel()

	if err := r.store.AppendEvent(writeCtx, event); err != nil {
		r.metrics.AuditFailed()
		log.Warn().
			Err(err).
			Int64("restaurant_id", restaurantID).
			Str("event_type", string(eventType)).
			Msg("Failed to record subscription event")
		return
	}

	r.metrics.EventRecorded(string(eventType))
	log.Debug().
		Int64("restaurant_id", restaurantID).
		Str("event_type", string(eventType)).
		Int64("event_id", event.ID).
		Msg("Subscription event recorded")
}

// Recent returns the newest events matching filter.
func (r *Recorder) Recent(ctx context.Context, filter models.EventFilter) ([]models.SubscriptionEvent, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > models.MaxEventListLimit:
		filter.Limit = models.MaxEventListLimit
	}
	return r.store.ListEvents(ctx, filter)
}

const defaultListLimit = 50
