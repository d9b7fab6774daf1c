package models

import "time"

// UnlimitedQuota marks a limit with no ceiling.
const UnlimitedQuota = -1

// Well-known limit keys used by the back-office.
const (
	LimitStaffMembers   = "staff_members"
	LimitProducts       = "products"
	LimitOrdersPerMonth = "orders_per_month"
	LimitTables         = "tables"
)

// Plan is a subscription tier: features, resource limits and, on the
// baseline plan, the trial configuration for new restaurants.
type Plan struct {
	ID           int64     `json:"id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	PriceMonthly int64     `json:"price_monthly"`
	PriceYearly  int64     `json:"price_yearly"`
	Features     []string  `json:"features"`
	Limits       Limits    `json:"limits"`
	IsVisible    bool      `json:"is_visible"`
	IsLegacy     bool      `json:"is_legacy"`
	IsActive     bool      `json:"is_active"`
	TrialEnabled bool      `json:"trial_enabled"`
	TrialDays    int       `json:"trial_days"`
	TrialPlanID  *int64    `json:"trial_plan_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns a deep copy of p.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Features = append([]string(nil), p.Features...)
	if p.Limits != nil {
		c.Limits = make(Limits, len(p.Limits))
		for k, v := range p.Limits {
			c.Limits[k] = v
		}
	}
	if p.TrialPlanID != nil {
		id := *p.TrialPlanID
		c.TrialPlanID = &id
	}
	return &c
}

// PlanPatch is a partial plan update. Nil fields keep their stored value.
type PlanPatch struct {
	Name         *string   `json:"name,omitempty"`
	PriceMonthly *int64    `json:"price_monthly,omitempty"`
	PriceYearly  *int64    `json:"price_yearly,omitempty"`
	Features     *[]string `json:"features,omitempty"`
	Limits       *Limits   `json:"limits,omitempty"`
	IsVisible    *bool     `json:"is_visible,omitempty"`
	IsLegacy     *bool     `json:"is_legacy,omitempty"`
	IsActive     *bool     `json:"is_active,omitempty"`
}

// Apply merges the patch into p.
func (pp PlanPatch) Apply(p *Plan) {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.PriceMonthly != nil {
		p.PriceMonthly = *pp.PriceMonthly
	}
	if pp.PriceYearly != nil {
		p.PriceYearly = *pp.PriceYearly
	}
	if pp.Features != nil {
		p.Features = append([]string(nil), (*pp.Features)...)
	}
	if pp.Limits != nil {
		p.Limits = make(Limits, len(*pp.Limits))
		for k, v := range *pp.Limits {
			p.Limits[k] = v
		}
	}
	if pp.IsVisible != nil {
		p.IsVisible = *pp.IsVisible
	}
	if pp.IsLegacy != nil {
		p.IsLegacy = *pp.IsLegacy
	}
	if pp.IsActive != nil {
		p.IsActive = *pp.IsActive
	}
}

// TrialConfig is the trial configuration carried by the baseline plan.
type TrialConfig struct {
	Enabled bool   `json:"enabled"`
	Days    int    `json:"days"`
	PlanID  *int64 `json:"plan_id,omitempty"`
}

// PlanFilter narrows plan listings.
type PlanFilter struct {
	OnlyActive  bool
	OnlyVisible bool
}
