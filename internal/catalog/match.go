package catalog

import (
	"github.com/PortNumber53/resto-entitlements/internal/capability"
	"github.com/PortNumber53/resto-entitlements/internal/models"
)

// PlanHasFeature reports whether plan grants featureKey through the global
// wildcard, the exact key, or the key's category wildcard. Every feature
// gate and feature enumeration goes through this function.
func PlanHasFeature(plan *models.Plan, featureKey string) bool {
	if plan == nil {
		return false
	}
	return capability.NewGrantSet(plan.Features).AllowsKey(featureKey)
}

// AvailableFeatures filters keys down to the ones plan grants, preserving
// order.
func AvailableFeatures(plan *models.Plan, keys []string) []string {
	if plan == nil {
		return nil
	}
	grants := capability.NewGrantSet(plan.Features)
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if grants.AllowsKey(key) {
			out = append(out, key)
		}
	}
	return out
}

// CheckLimit reports whether one more resource may be created when
// currentValue already exist. An absent limit or -1 is unlimited.
func CheckLimit(plan *models.Plan, limitKey string, currentValue int) bool {
	if plan == nil {
		return false
	}
	limit, ok := plan.Limits[limitKey]
	if !ok || limit == models.UnlimitedQuota {
		return true
	}
	return currentValue < limit
}

// RemainingQuota returns how many more resources fit under the limit. The
// second result is true when the limit is unlimited, in which case the
// count is meaningless.
func RemainingQuota(plan *models.Plan, limitKey string, currentValue int) (int, bool) {
	if plan == nil {
		return 0, false
	}
	limit, ok := plan.Limits[limitKey]
	if !ok || limit == models.UnlimitedQuota {
		return 0, true
	}
	return max(0, limit-currentValue), false
}
