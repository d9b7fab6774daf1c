package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/PortNumber53/resto-entitlements/internal/apperrors"
	"github.com/PortNumber53/resto-entitlements/internal/models"
)

const planColumns = `id, slug, name, price_monthly, price_yearly, features, limits,
	is_visible, is_legacy, is_active, trial_enabled, trial_days, trial_plan_id,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*models.Plan, error) {
	var (
		p           models.Plan
		features    pq.StringArray
		trialPlanID sql.NullInt64
	)
	if err := row.Scan(
		&p.ID, &p.Slug, &p.Name, &p.PriceMonthly, &p.PriceYearly, &features, &p.Limits,
		&p.IsVisible, &p.IsLegacy, &p.IsActive, &p.TrialEnabled, &p.TrialDays, &trialPlanID,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Features = []string(features)
	if p.Features == nil {
		p.Features = []string{}
	}
	p.TrialPlanID = nullInt64Ptr(trialPlanID)
	return &p, nil
}

// CreatePlan inserts p and fills its id and timestamps.
func (s *queries) CreatePlan(ctx context.Context, p *models.Plan) error {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO plans (slug, name, price_monthly, price_yearly, features, limits,
			is_visible, is_legacy, is_active, trial_enabled, trial_days, trial_plan_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at, updated_at`,
		p.Slug, p.Name, p.PriceMonthly, p.PriceYearly, pq.Array(p.Features), p.Limits,
		p.IsVisible, p.IsLegacy, p.IsActive, p.TrialEnabled, p.TrialDays, int64Arg(p.TrialPlanID),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("plan slug %q already exists", p.Slug)
		}
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

// UpdatePlan writes every mutable column of p.
func (s *queries) UpdatePlan(ctx context.Context, p *models.Plan) error {
	err := s.q.QueryRowContext(ctx,
		`UPDATE plans
		 SET name = $2,
		     price_monthly = $3,
		     price_yearly = $4,
		     features = $5,
		     limits = $6,
		     is_visible = $7,
		     is_legacy = $8,
		     is_active = $9,
		     trial_enabled = $10,
		     trial_days = $11,
		     trial_plan_id = $12,
		     updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		p.ID, p.Name, p.PriceMonthly, p.PriceYearly, pq.Array(p.Features), p.Limits,
		p.IsVisible, p.IsLegacy, p.IsActive, p.TrialEnabled, p.TrialDays, int64Arg(p.TrialPlanID),
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("plan", p.ID)
		}
		return fmt.Errorf("update plan %d: %w", p.ID, err)
	}
	return nil
}

// GetPlanByID returns a plan by its ID
func (s *queries) GetPlanByID(ctx context.Context, id int64) (*models.Plan, error) {
	p, err := scanPlan(s.q.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("plan", id)
		}
		return nil, fmt.Errorf("get plan by id: %w", err)
	}
	return p, nil
}

// GetPlanBySlug returns a plan by its slug
func (s *queries) GetPlanBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	p, err := scanPlan(s.q.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE slug = $1`, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("plan", slug)
		}
		return nil, fmt.Errorf("get plan by slug: %w", err)
	}
	return p, nil
}

// ListPlans returns plans ordered by id.
func (s *queries) ListPlans(ctx context.Context, filter models.PlanFilter) ([]models.Plan, error) {
	var where []string
	if filter.OnlyActive {
		where = append(where, "is_active")
	}
	if filter.OnlyVisible {
		where = append(where, "is_visible")
	}

	query := `SELECT ` + planColumns + ` FROM plans`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}
