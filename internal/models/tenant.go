package models

import "time"

// SubscriptionStatus represents the lifecycle state of a restaurant's subscription
type SubscriptionStatus string

const (
	StatusTrial     SubscriptionStatus = "trial"
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusSuspended SubscriptionStatus = "suspended"
)

// Valid reports whether s is one of the known statuses.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusExpired, StatusCancelled, StatusSuspended:
		return true
	default:
		return false
	}
}

// Tenant is the subscription view of a restaurant row.
type Tenant struct {
	ID                      int64              `json:"id"`
	Name                    string             `json:"name"`
	SubscriptionPlanID      int64              `json:"subscription_plan_id"`
	SubscriptionStatus      SubscriptionStatus `json:"subscription_status"`
	SubscriptionTrialEndsAt *time.Time         `json:"subscription_trial_ends_at,omitempty"`
	SubscriptionExpiresAt   *time.Time         `json:"subscription_expires_at,omitempty"`
	IsTrialUsed             bool               `json:"is_trial_used"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

// Clone returns a deep copy of t.
func (t *Tenant) Clone() *Tenant {
	if t == nil {
		return nil
	}
	c := *t
	c.SubscriptionTrialEndsAt = cloneTime(t.SubscriptionTrialEndsAt)
	c.SubscriptionExpiresAt = cloneTime(t.SubscriptionExpiresAt)
	return &c
}

// TrialExpired reports whether t is a trial whose end date is before now.
func (t *Tenant) TrialExpired(now time.Time) bool {
	return t.SubscriptionStatus == StatusTrial &&
		t.SubscriptionTrialEndsAt != nil &&
		t.SubscriptionTrialEndsAt.Before(now)
}

// SubscriptionLapsed reports whether t is active or trialing with an
// expiry date before now.
func (t *Tenant) SubscriptionLapsed(now time.Time) bool {
	if t.SubscriptionStatus != StatusActive && t.SubscriptionStatus != StatusTrial {
		return false
	}
	return t.SubscriptionExpiresAt != nil && t.SubscriptionExpiresAt.Before(now)
}

// TenantFilter selects restaurants for batch operations. Empty fields do
// not filter.
type TenantFilter struct {
	IDs    []int64             `json:"ids,omitempty"`
	PlanID *int64              `json:"plan_id,omitempty"`
	Status *SubscriptionStatus `json:"status,omitempty"`
}

// Matches reports whether t passes the filter.
func (f TenantFilter) Matches(t *Tenant) bool {
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == t.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.PlanID != nil && t.SubscriptionPlanID != *f.PlanID {
		return false
	}
	if f.Status != nil && t.SubscriptionStatus != *f.Status {
		return false
	}
	return true
}

// Empty reports whether no criteria are set.
func (f TenantFilter) Empty() bool {
	return len(f.IDs) == 0 && f.PlanID == nil && f.Status == nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
