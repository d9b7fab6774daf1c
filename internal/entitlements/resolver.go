// Package entitlements answers feature-gate and quota questions by
// combining the restaurant's live plan with the caller's role permissions.
package entitlements

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/resto-entitlements/internal/apperrors"
	"github.com/PortNumber53/resto-entitlements/internal/audit"
	"github.com/PortNumber53/resto-entitlements/internal/capability"
	"github.com/PortNumber53/resto-entitlements/internal/catalog"
	"github.com/PortNumber53/resto-entitlements/internal/metrics"
	"github.com/PortNumber53/resto-entitlements/internal/models"
)

// Gate names the check that denied an access request.
type Gate string

const (
	GatePlan       Gate = "plan_restriction"
	GatePermission Gate = "permission_restriction"
)

// Plans is the catalog view the resolver reads.
type Plans interface {
	GetByID(ctx context.Context, id int64) (*models.Plan, error)
	ListVisible(ctx context.Context) ([]models.Plan, error)
}

// Tenants loads restaurants.
type Tenants interface {
	GetTenant(ctx context.Context, id int64) (*models.Tenant, error)
}

// Resolver evaluates access and quota decisions.
type Resolver struct {
	plans    Plans
	tenants  Tenants
	recorder *audit.Recorder
	metrics  *metrics.Metrics
}

// NewResolver creates a Resolver. recorder and m may be nil.
func NewResolver(plans Plans, tenants Tenants, recorder *audit.Recorder, m *metrics.Metrics) (*Resolver, error) {
	if plans == nil || tenants == nil {
		return nil, errors.New("entitlements: plans and tenants are required")
	}
	return &Resolver{plans: plans, tenants: tenants, recorder: recorder, metrics: m}, nil
}

// RoleHasPermission reports whether permissions hold key exactly or the
// "*" grant. Category wildcards do not apply to permissions.
func RoleHasPermission(permissions []string, key string) bool {
	return capability.NewPermissionSet(permissions).Has(key)
}

// AccessRequest is one feature-gate check.
type AccessRequest struct {
	RestaurantID int64
	Permissions  []string
	Plan         *models.Plan
	Feature      string
	Permission   string
}

// Decision is the outcome of an access check. DeniedBy is empty when
// access is allowed; when both gates fail the plan gate is reported.
type Decision struct {
	Allowed  bool `json:"allowed"`
	DeniedBy Gate `json:"denied_by,omitempty"`
}

// Decide evaluates both gates. A denial is recorded as an access.denied
// event; recording never changes the decision.
func (r *Resolver) Decide(ctx context.Context, req AccessRequest) Decision {
	planOK := catalog.PlanHasFeature(req.Plan, req.Feature)
	roleOK := RoleHasPermission(req.Permissions, req.Permission)

	d := Decision{Allowed: planOK && roleOK}
	switch {
	case !planOK:
		d.DeniedBy = GatePlan
	case !roleOK:
		d.DeniedBy = GatePermission
	}
	if !d.Allowed {
		r.recordDenial(ctx, req, d.DeniedBy, planOK, roleOK)
	}
	return d
}

// CanAccess reports whether both the plan and the role allow the request.
func (r *Resolver) CanAccess(ctx context.Context, req AccessRequest) bool {
	return r.Decide(ctx, req).Allowed
}

func (r *Resolver) recordDenial(ctx context.Context, req AccessRequest, gate Gate, planOK, roleOK bool) {
	r.metrics.AccessDenied(string(gate))

	data := models.JSONB{
		"gate":       string(gate),
		"feature":    req.Feature,
		"permission": req.Permission,
		"plan_ok":    planOK,
		"role_ok":    roleOK,
	}
	if req.Plan != nil {
		data["plan_id"] = req.Plan.ID
		data["plan_slug"] = req.Plan.Slug
	}
	r.recorder.Record(ctx, req.RestaurantID, models.EventAccessDenied, data)
}

// CheckTenantAccess loads the restaurant's live plan and decides. A
// missing restaurant or plan is denied at the plan gate without error.
func (r *Resolver) CheckTenantAccess(ctx context.Context, tenantID int64, permissions []string, feature, permission string) (Decision, error) {
	_, plan, err := r.tenantPlan(ctx, tenantID)
	if err != nil && !apperrors.IsNotFound(err) {
		return Decision{Allowed: false, DeniedBy: GatePlan}, err
	}
	return r.Decide(ctx, AccessRequest{
		RestaurantID: tenantID,
		Permissions:  permissions,
		Plan:         plan,
		Feature:      feature,
		Permission:   permission,
	}), nil
}

// QuotaResult is the outcome of a limit check. Limit and Remaining are nil
// when the plan does not cap the resource.
type QuotaResult struct {
	Allowed   bool   `json:"allowed"`
	LimitKey  string `json:"limit_key"`
	Current   int    `json:"current"`
	Limit     *int   `json:"limit"`
	Remaining *int   `json:"remaining"`
	Unlimited bool   `json:"unlimited"`
}

// CheckQuota reports whether one more resource fits under the plan's
// limit. A refusal is recorded as a limit.reached event.
func (r *Resolver) CheckQuota(ctx context.Context, restaurantID int64, plan *models.Plan, limitKey string, current int) QuotaResult {
	res := QuotaResult{
		Allowed:  catalog.CheckLimit(plan, limitKey, current),
		LimitKey: limitKey,
		Current:  current,
	}

	remaining, unlimited := catalog.RemainingQuota(plan, limitKey, current)
	res.Unlimited = unlimited
	if !unlimited {
		res.Remaining = &remaining
		if plan != nil {
			limit := plan.Limits[limitKey]
			res.Limit = &limit
		}
	}

	if !res.Allowed {
		r.metrics.LimitReached(limitKey)
		data := models.JSONB{
			"limit_key": limitKey,
			"current":   current,
		}
		if res.Limit != nil {
			data["limit"] = *res.Limit
		}
		if plan != nil {
			data["plan_id"] = plan.ID
		}
		r.recorder.Record(ctx, restaurantID, models.EventLimitReached, data)
	}
	return res
}

// CheckTenantQuota runs CheckQuota against the restaurant's live plan. A
// missing restaurant or plan refuses.
func (r *Resolver) CheckTenantQuota(ctx context.Context, tenantID int64, limitKey string, current int) (QuotaResult, error) {
	_, plan, err := r.tenantPlan(ctx, tenantID)
	if err != nil && !apperrors.IsNotFound(err) {
		return QuotaResult{LimitKey: limitKey, Current: current}, err
	}
	return r.CheckQuota(ctx, tenantID, plan, limitKey, current), nil
}

// SuggestUpgrade returns the cheapest visible plan that includes feature
// and costs strictly more per month than current. It returns nil when no
// such plan exists. A nil current considers every visible plan.
func (r *Resolver) SuggestUpgrade(ctx context.Context, current *models.Plan, feature string) (*models.Plan, error) {
	plans, err := r.plans.ListVisible(ctx)
	if err != nil {
		return nil, fmt.Errorf("entitlements: list visible plans: %w", err)
	}

	var best *models.Plan
	for i := range plans {
		p := &plans[i]
		if current != nil && (p.ID == current.ID || p.PriceMonthly <= current.PriceMonthly) {
			continue
		}
		if !catalog.PlanHasFeature(p, feature) {
			continue
		}
		if best == nil || catalog.LessByPrice(p, best) {
			best = p
		}
	}
	return best, nil
}

// SuggestTenantUpgrade runs SuggestUpgrade against the restaurant's live
// plan.
func (r *Resolver) SuggestTenantUpgrade(ctx context.Context, tenantID int64, feature string) (*models.Plan, error) {
	t, plan, err := r.tenantPlan(ctx, tenantID)
	if t == nil {
		return nil, err
	}
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}
	suggestion, err := r.SuggestUpgrade(ctx, plan, feature)
	if err != nil {
		return nil, err
	}
	if suggestion != nil {
		log.Debug().
			Int64("restaurant_id", tenantID).
			Str("feature", feature).
			Str("suggested_plan", suggestion.Slug).
			Msg("Upgrade suggested")
	}
	return suggestion, nil
}

// AvailableFeatures returns the keys the plan grants, using the same
// matching as Decide.
func (r *Resolver) AvailableFeatures(plan *models.Plan, keys []string) []string {
	return catalog.AvailableFeatures(plan, keys)
}

// tenantPlan loads a restaurant and its live plan. The tenant is returned
// even when its plan cannot be loaded.
func (r *Resolver) tenantPlan(ctx context.Context, tenantID int64) (*models.Tenant, *models.Plan, error) {
	t, err := r.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	plan, err := r.plans.GetByID(ctx, t.SubscriptionPlanID)
	if err != nil {
		return t, nil, err
	}
	return t, plan, nil
}
