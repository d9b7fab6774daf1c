// Package catalog owns plan definitions and the feature and limit checks
// evaluated against them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/resto-entitlements/internal/apperrors"
	"github.com/PortNumber53/resto-entitlements/internal/models"
)

// DefaultBaselineSlug is the slug of the floor plan every restaurant falls
// back to.
const DefaultBaselineSlug = "free"

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Store defines the plan persistence required by the catalog.
type Store interface {
	CreatePlan(ctx context.Context, p *models.Plan) error
	UpdatePlan(ctx context.Context, p *models.Plan) error
	GetPlanByID(ctx context.Context, id int64) (*models.Plan, error)
	GetPlanBySlug(ctx context.Context, slug string) (*models.Plan, error)
	ListPlans(ctx context.Context, filter models.PlanFilter) ([]models.Plan, error)
}

// Catalog provides plan CRUD and trial configuration.
type Catalog struct {
	store        Store
	baselineSlug string
}

// New creates a Catalog. An empty baselineSlug uses DefaultBaselineSlug.
func New(store Store, baselineSlug string) (*Catalog, error) {
	if store == nil {
		return nil, errors.New("catalog: store cannot be nil")
	}
	if strings.TrimSpace(baselineSlug) == "" {
		baselineSlug = DefaultBaselineSlug
	}
	return &Catalog{store: store, baselineSlug: baselineSlug}, nil
}

// BaselineSlug returns the slug of the baseline plan.
func (c *Catalog) BaselineSlug() string { return c.baselineSlug }

// Create validates and stores a new plan.
func (c *Catalog) Create(ctx context.Context, p *models.Plan) (*models.Plan, error) {
	p.Slug = strings.TrimSpace(p.Slug)
	p.Name = strings.TrimSpace(p.Name)
	if err := validatePlan(p); err != nil {
		return nil, err
	}

	if existing, err := c.store.GetPlanBySlug(ctx, p.Slug); err == nil && existing != nil {
		return nil, apperrors.Conflict("plan slug %q already exists", p.Slug)
	} else if err != nil && !apperrors.IsNotFound(err) {
		return nil, fmt.Errorf("catalog: check slug: %w", err)
	}

	if p.TrialPlanID != nil {
		if _, err := c.store.GetPlanByID(ctx, *p.TrialPlanID); err != nil {
			return nil, fmt.Errorf("catalog: trial plan: %w", err)
		}
	}

	if p.Limits == nil {
		p.Limits = models.Limits{}
	}
	if p.Features == nil {
		p.Features = []string{}
	}

	if err := c.store.CreatePlan(ctx, p); err != nil {
		return nil, fmt.Errorf("catalog: create plan: %w", err)
	}

	log.Info().Int64("plan_id", p.ID).Str("slug", p.Slug).Msg("Plan created")
	return p, nil
}

// Update merges patch into the stored plan. Fields the patch leaves nil
// keep their stored values.
func (c *Catalog) Update(ctx context.Context, id int64, patch models.PlanPatch) (*models.Plan, error) {
	p, err := c.store.GetPlanByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patch.Apply(p)
	p.Name = strings.TrimSpace(p.Name)
	if err := validatePlan(p); err != nil {
		return nil, err
	}
	if !p.IsActive && p.Slug == c.baselineSlug {
		return nil, apperrors.Invalid("is_active", "the baseline plan cannot be deactivated")
	}

	if err := c.store.UpdatePlan(ctx, p); err != nil {
		return nil, fmt.Errorf("catalog: update plan %d: %w", id, err)
	}

	log.Info().Int64("plan_id", p.ID).Str("slug", p.Slug).Msg("Plan updated")
	return p, nil
}

// SoftDelete clears is_active. Plans are never removed because restaurants
// and upgrade snapshots may still reference them.
func (c *Catalog) SoftDelete(ctx context.Context, id int64) error {
	p, err := c.store.GetPlanByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Slug == c.baselineSlug {
		return apperrors.Invalid("plan", "the baseline plan cannot be deleted")
	}
	if !p.IsActive {
		return nil
	}

	p.IsActive = false
	if err := c.store.UpdatePlan(ctx, p); err != nil {
		return fmt.Errorf("catalog: soft delete plan %d: %w", id, err)
	}

	log.Info().Int64("plan_id", p.ID).Str("slug", p.Slug).Msg("Plan deactivated")
	return nil
}

// GetByID returns a plan by id.
func (c *Catalog) GetByID(ctx context.Context, id int64) (*models.Plan, error) {
	return c.store.GetPlanByID(ctx, id)
}

// GetBySlug returns a plan by slug.
func (c *Catalog) GetBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	return c.store.GetPlanBySlug(ctx, strings.TrimSpace(slug))
}

// List returns every plan, or only active ones.
func (c *Catalog) List(ctx context.Context, includeInactive bool) ([]models.Plan, error) {
	plans, err := c.store.ListPlans(ctx, models.PlanFilter{OnlyActive: !includeInactive})
	if err != nil {
		return nil, fmt.Errorf("catalog: list plans: %w", err)
	}
	sortByPrice(plans)
	return plans, nil
}

// ListVisible returns active, visible plans ordered by price.
func (c *Catalog) ListVisible(ctx context.Context) ([]models.Plan, error) {
	plans, err := c.store.ListPlans(ctx, models.PlanFilter{OnlyActive: true, OnlyVisible: true})
	if err != nil {
		return nil, fmt.Errorf("catalog: list visible plans: %w", err)
	}
	sortByPrice(plans)
	return plans, nil
}

// Baseline returns the floor plan.
func (c *Catalog) Baseline(ctx context.Context) (*models.Plan, error) {
	p, err := c.store.GetPlanBySlug(ctx, c.baselineSlug)
	if err != nil {
		return nil, fmt.Errorf("catalog: baseline plan %q: %w", c.baselineSlug, err)
	}
	return p, nil
}

// TrialConfig returns the trial configuration stored on the baseline plan.
func (c *Catalog) TrialConfig(ctx context.Context) (models.TrialConfig, error) {
	base, err := c.Baseline(ctx)
	if err != nil {
		return models.TrialConfig{}, err
	}
	return models.TrialConfig{
		Enabled: base.TrialEnabled,
		Days:    base.TrialDays,
		PlanID:  base.TrialPlanID,
	}, nil
}

// ConfigureTrial writes the trial configuration onto the baseline plan.
func (c *Catalog) ConfigureTrial(ctx context.Context, cfg models.TrialConfig) (models.TrialConfig, error) {
	if cfg.Days < 0 {
		return models.TrialConfig{}, apperrors.Invalid("trial_days", "must not be negative")
	}
	if cfg.Enabled {
		if cfg.Days == 0 {
			return models.TrialConfig{}, apperrors.Invalid("trial_days", "must be positive when the trial is enabled")
		}
		if cfg.PlanID == nil {
			return models.TrialConfig{}, apperrors.Invalid("trial_plan_id", "is required when the trial is enabled")
		}
		trialPlan, err := c.store.GetPlanByID(ctx, *cfg.PlanID)
		if err != nil {
			return models.TrialConfig{}, err
		}
		if !trialPlan.IsActive {
			return models.TrialConfig{}, apperrors.Invalid("trial_plan_id", "plan is not active")
		}
	}

	base, err := c.Baseline(ctx)
	if err != nil {
		return models.TrialConfig{}, err
	}

	base.TrialEnabled = cfg.Enabled
	base.TrialDays = cfg.Days
	base.TrialPlanID = cfg.PlanID
	if err := c.store.UpdatePlan(ctx, base); err != nil {
		return models.TrialConfig{}, fmt.Errorf("catalog: configure trial: %w", err)
	}

	log.Info().
		Bool("enabled", cfg.Enabled).
		Int("days", cfg.Days).
		Msg("Trial configuration updated")
	return cfg, nil
}

func validatePlan(p *models.Plan) error {
	if !slugPattern.MatchString(p.Slug) {
		return apperrors.Invalid("slug", "must be lowercase letters, digits, '-' or '_'")
	}
	if p.Name == "" {
		return apperrors.Invalid("name", "is required")
	}
	if p.PriceMonthly < 0 || p.PriceYearly < 0 {
		return apperrors.Invalid("price", "must not be negative")
	}
	if p.TrialDays < 0 {
		return apperrors.Invalid("trial_days", "must not be negative")
	}
	for key, limit := range p.Limits {
		if strings.TrimSpace(key) == "" {
			return apperrors.Invalid("limits", "limit keys must not be blank")
		}
		if limit < models.UnlimitedQuota {
			return apperrors.Invalid("limits", fmt.Sprintf("%s must be -1 (unlimited) or a non-negative count", key))
		}
	}
	return nil
}

func sortByPrice(plans []models.Plan) {
	sort.SliceStable(plans, func(i, j int) bool {
		return lessByPrice(&plans[i], &plans[j])
	})
}

// lessByPrice orders by monthly price, then yearly price, then id.
func lessByPrice(a, b *models.Plan) bool {
	if a.PriceMonthly != b.PriceMonthly {
		return a.PriceMonthly < b.PriceMonthly
	}
	if a.PriceYearly != b.PriceYearly {
		return a.PriceYearly < b.PriceYearly
	}
	return a.ID < b.ID
}

// LessByPrice exposes the catalog's price ordering.
func LessByPrice(a, b *models.Plan) bool { return lessByPrice(a, b) }
