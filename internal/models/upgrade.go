package models

import "time"

// TemporaryUpgrade is a time-boxed override of a restaurant's plan. The
// Original* fields are the snapshot restored when the upgrade ends.
type TemporaryUpgrade struct {
	ID              int64              `json:"id"`
	RestaurantID    int64              `json:"restaurant_id"`
	OriginalPlanID  int64              `json:"original_plan_id"`
	OriginalStatus  SubscriptionStatus `json:"original_status"`
	TemporaryPlanID int64              `json:"temporary_plan_id"`
	ExpiresAt       time.Time          `json:"expires_at"`
	Reason          string             `json:"reason"`
	GrantedBy       string             `json:"granted_by,omitempty"`
	IsActive        bool               `json:"is_active"`
	CreatedAt       time.Time          `json:"created_at"`
	DeactivatedAt   *time.Time         `json:"deactivated_at,omitempty"`
}

// Clone returns a deep copy of u.
func (u *TemporaryUpgrade) Clone() *TemporaryUpgrade {
	if u == nil {
		return nil
	}
	c := *u
	c.DeactivatedAt = cloneTime(u.DeactivatedAt)
	return &c
}

// Expired reports whether an active upgrade's window closed before now.
func (u *TemporaryUpgrade) Expired(now time.Time) bool {
	return u.IsActive && u.ExpiresAt.Before(now)
}
