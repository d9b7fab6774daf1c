package models

import "time"

// EventType identifies a subscription audit event.
type EventType string

const (
	EventTrialStarted        EventType = "subscription.trial_started"
	EventPlanAssigned        EventType = "subscription.plan_assigned"
	EventTemporaryUpgrade    EventType = "subscription.temporary_upgrade"
	EventTempUpgradeExpired  EventType = "subscription.temp_upgrade_expired"
	EventTempUpgradeRevoked  EventType = "subscription.temp_upgrade_revoked"
	EventDowngraded          EventType = "subscription.downgraded"
	EventSubscriptionUpdated EventType = "subscription.updated"
	EventAccessDenied        EventType = "access.denied"
	EventLimitReached        EventType = "limit.reached"
)

// SubscriptionEvent is an append-only audit record.
type SubscriptionEvent struct {
	ID           int64     `json:"id"`
	RestaurantID int64     `json:"restaurant_id"`
	EventType    EventType `json:"event_type"`
	EventData    JSONB     `json:"event_data"`
	CreatedAt    time.Time `json:"created_at"`
}

// MaxEventListLimit is the largest page of events one listing returns.
const MaxEventListLimit = 500

// EventFilter narrows event listings.
type EventFilter struct {
	RestaurantID *int64
	EventType    EventType
	Limit        int
}
