package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PortNumber53/resto-entitlements/internal/models"
)

// PlanCatalog is the plan administration surface.
type PlanCatalog interface {
	List(ctx context.Context, includeInactive bool) ([]models.Plan, error)
	ListVisible(ctx context.Context) ([]models.Plan, error)
	Create(ctx context.Context, p *models.Plan) (*models.Plan, error)
	GetByID(ctx context.Context, id int64) (*models.Plan, error)
	GetBySlug(ctx context.Context, slug string) (*models.Plan, error)
	Update(ctx context.Context, id int64, patch models.PlanPatch) (*models.Plan, error)
	SoftDelete(ctx context.Context, id int64) error
	TrialConfig(ctx context.Context) (models.TrialConfig, error)
	ConfigureTrial(ctx context.Context, cfg models.TrialConfig) (models.TrialConfig, error)
}

// ListPlans returns visible plans, or every plan with ?all=true.
func ListPlans(catalog PlanCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			plans []models.Plan
			err   error
		)
		if r.URL.Query().Get("all") == "true" {
			plans, err = catalog.List(r.Context(), true)
		} else {
			plans, err = catalog.ListVisible(r.Context())
		}
		if err != nil {
			writeError(w, r, "list plans", err)
			return
		}
		if plans == nil {
			plans = []models.Plan{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
	}
}

// createPlanRequest mirrors models.Plan minus server-owned fields.
type createPlanRequest struct {
	Slug         string        `json:"slug"`
	Name         string        `json:"name"`
	PriceMonthly int64         `json:"price_monthly"`
	PriceYearly  int64         `json:"price_yearly"`
	Features     []string      `json:"features"`
	Limits       models.Limits `json:"limits"`
	IsVisible    *bool         `json:"is_visible"`
	IsLegacy     bool          `json:"is_legacy"`
	TrialEnabled bool          `json:"trial_enabled"`
	TrialDays    int           `json:"trial_days"`
	TrialPlanID  *int64        `json:"trial_plan_id"`
}

// CreatePlan creates a plan. New plans are active and, unless stated
// otherwise, visible.
func CreatePlan(catalog PlanCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createPlanRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		visible := true
		if req.IsVisible != nil {
			visible = *req.IsVisible
		}
		p, err := catalog.Create(r.Context(), &models.Plan{
			Slug:         req.Slug,
			Name:         req.Name,
			PriceMonthly: req.PriceMonthly,
			PriceYearly:  req.PriceYearly,
			Features:     req.Features,
			Limits:       req.Limits,
			IsVisible:    visible,
			IsLegacy:     req.IsLegacy,
			IsActive:     true,
			TrialEnabled: req.TrialEnabled,
			TrialDays:    req.TrialDays,
			TrialPlanID:  req.TrialPlanID,
		})
		if err != nil {
			writeError(w, r, "create plan", err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

// GetPlan returns a plan by id.
func GetPlan(catalog PlanCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		p, err := catalog.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, r, "get plan", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// GetPlanBySlug returns a plan by slug.
func GetPlanBySlug(catalog PlanCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := catalog.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
		if err != nil {
			writeError(w, r, "get plan by slug", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// UpdatePlan merges a partial update into a plan.
func UpdatePlan(catalog PlanCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var patch models.PlanPatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		p, err := catalog.Update(r.Context(), id, patch)
		if err != nil {
			writeError(w, r, "update plan", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// DeletePlan soft-deletes a plan.
func DeletePlan(catalog PlanCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if err := catalog.SoftDelete(r.Context(), id); err != nil {
			writeError(w, r, "delete plan", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// TrialConfig reads (GET) or replaces (PUT) the trial configuration.
func TrialConfig(catalog PlanCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			cfg, err := catalog.TrialConfig(r.Context())
			if err != nil {
				writeError(w, r, "get trial config", err)
				return
			}
			writeJSON(w, http.StatusOK, cfg)
		case http.MethodPut:
			var cfg models.TrialConfig
			if !decodeJSON(w, r, &cfg) {
				return
			}
			saved, err := catalog.ConfigureTrial(r.Context(), cfg)
			if err != nil {
				writeError(w, r, "configure trial", err)
				return
			}
			writeJSON(w, http.StatusOK, saved)
		default:
			w.Header().Set("Allow", "GET, PUT")
			writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}
