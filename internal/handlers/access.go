package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/PortNumber53/resto-entitlements/internal/entitlements"
	"github.com/PortNumber53/resto-entitlements/internal/models"
)

// AccessResolver answers feature-gate, quota and upgrade questions.
type AccessResolver interface {
	CheckTenantAccess(ctx context.Context, tenantID int64, permissions []string, feature, permission string) (entitlements.Decision, error)
	CheckTenantQuota(ctx context.Context, tenantID int64, limitKey string, current int) (entitlements.QuotaResult, error)
	SuggestTenantUpgrade(ctx context.Context, tenantID int64, feature string) (*models.Plan, error)
}

type accessCheckRequest struct {
	Permissions []string `json:"permissions"`
	Feature     string   `json:"feature"`
	Permission  string   `json:"permission"`
}

// AccessCheck evaluates the plan and role gates. A denial is a normal 200
// response with allowed=false.
func AccessCheck(resolver AccessResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req accessCheckRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Feature) == "" || strings.TrimSpace(req.Permission) == "" {
			writeMessage(w, http.StatusBadRequest, "feature and permission are required")
			return
		}
		decision, err := resolver.CheckTenantAccess(r.Context(), id, req.Permissions, req.Feature, req.Permission)
		if err != nil {
			writeError(w, r, "access check", err)
			return
		}
		writeJSON(w, http.StatusOK, decision)
	}
}

type quotaCheckRequest struct {
	LimitKey string `json:"limit_key"`
	Current  int    `json:"current"`
}

// QuotaCheck reports whether one more resource fits under the plan limit.
func QuotaCheck(resolver AccessResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req quotaCheckRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.LimitKey) == "" {
			writeMessage(w, http.StatusBadRequest, "limit_key is required")
			return
		}
		if req.Current < 0 {
			writeMessage(w, http.StatusBadRequest, "current must not be negative")
			return
		}
		result, err := resolver.CheckTenantQuota(r.Context(), id, req.LimitKey, req.Current)
		if err != nil {
			writeError(w, r, "quota check", err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// UpgradeSuggestion returns the cheapest visible plan above the
// restaurant's current one that includes ?feature=, or null.
func UpgradeSuggestion(resolver AccessResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		feature := strings.TrimSpace(r.URL.Query().Get("feature"))
		if feature == "" {
			writeMessage(w, http.StatusBadRequest, "feature is required")
			return
		}
		plan, err := resolver.SuggestTenantUpgrade(r.Context(), id, feature)
		if err != nil {
			writeError(w, r, "upgrade suggestion", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"feature": feature, "plan": plan})
	}
}
