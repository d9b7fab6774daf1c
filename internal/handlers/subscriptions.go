package handlers

import (
	"context"
	"net/http"

	"github.com/PortNumber53/resto-entitlements/internal/models"
	"github.com/PortNumber53/resto-entitlements/internal/overlay"
)

// SubscriptionManager is the lifecycle surface used by operators.
type SubscriptionManager interface {
	GetTenant(ctx context.Context, tenantID int64) (*models.Tenant, error)
	ActiveUpgrade(ctx context.Context, tenantID int64) (*models.TemporaryUpgrade, error)
	ListUpgrades(ctx context.Context, tenantID int64) ([]models.TemporaryUpgrade, error)
	UpdateSubscription(ctx context.Context, tenantID int64, upd overlay.SubscriptionUpdate) (*models.Tenant, error)
	AssignTrial(ctx context.Context, tenantID int64) (*models.Tenant, error)
	CreateTemporaryUpgrade(ctx context.Context, req overlay.GrantRequest) (*models.TemporaryUpgrade, error)
	BatchTemporaryUpgrade(ctx context.Context, req overlay.BatchRequest) (*overlay.BatchResult, error)
	RevokeTemporaryUpgrade(ctx context.Context, upgradeID int64) (bool, error)
}

type subscriptionResponse struct {
	Restaurant    *models.Tenant           `json:"restaurant"`
	ActiveUpgrade *models.TemporaryUpgrade `json:"active_upgrade"`
}

// GetSubscription returns a restaurant's subscription and active upgrade.
func GetSubscription(manager SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		t, err := manager.GetTenant(r.Context(), id)
		if err != nil {
			writeError(w, r, "get subscription", err)
			return
		}
		active, err := manager.ActiveUpgrade(r.Context(), id)
		if err != nil {
			writeError(w, r, "get active upgrade", err)
			return
		}
		writeJSON(w, http.StatusOK, subscriptionResponse{Restaurant: t, ActiveUpgrade: active})
	}
}

// UpdateSubscription applies an operator edit to a restaurant.
func UpdateSubscription(manager SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var upd overlay.SubscriptionUpdate
		if !decodeJSON(w, r, &upd) {
			return
		}
		t, err := manager.UpdateSubscription(r.Context(), id, upd)
		if err != nil {
			writeError(w, r, "update subscription", err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// AssignTrial starts the configured trial for a restaurant.
func AssignTrial(manager SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		t, err := manager.AssignTrial(r.Context(), id)
		if err != nil {
			writeError(w, r, "assign trial", err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

type grantRequest struct {
	TemporaryPlanID int64  `json:"temporary_plan_id"`
	DurationDays    int    `json:"duration_days"`
	Reason          string `json:"reason"`
	GrantedBy       string `json:"granted_by,omitempty"`
}

// CreateTemporaryUpgrade grants a temporary upgrade to one restaurant.
func CreateTemporaryUpgrade(manager SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req grantRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		u, err := manager.CreateTemporaryUpgrade(r.Context(), overlay.GrantRequest{
			RestaurantID:    id,
			TemporaryPlanID: req.TemporaryPlanID,
			DurationDays:    req.DurationDays,
			Reason:          req.Reason,
			GrantedBy:       operatorID(r, req.GrantedBy),
		})
		if err != nil {
			writeError(w, r, "create temporary upgrade", err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

// ListTemporaryUpgrades returns a restaurant's upgrade history.
func ListTemporaryUpgrades(manager SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		upgrades, err := manager.ListUpgrades(r.Context(), id)
		if err != nil {
			writeError(w, r, "list temporary upgrades", err)
			return
		}
		if upgrades == nil {
			upgrades = []models.TemporaryUpgrade{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"upgrades": upgrades})
	}
}

// BatchTemporaryUpgrade grants the same upgrade to every selected
// restaurant. Per-restaurant failures are reported in the body; the
// response is 200 as long as the batch itself ran.
func BatchTemporaryUpgrade(manager SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req overlay.BatchRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.GrantedBy = operatorID(r, req.GrantedBy)
		result, err := manager.BatchTemporaryUpgrade(r.Context(), req)
		if err != nil {
			writeError(w, r, "batch temporary upgrade", err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// RevokeTemporaryUpgrade ends an upgrade early and restores the original
// plan. Revoking an inactive upgrade succeeds with revoked=false.
func RevokeTemporaryUpgrade(manager SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		revoked, err := manager.RevokeTemporaryUpgrade(r.Context(), id)
		if err != nil {
			writeError(w, r, "revoke temporary upgrade", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"upgrade_id": id, "revoked": revoked})
	}
}
