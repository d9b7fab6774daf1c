package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/PortNumber53/resto-entitlements/internal/apperrors"
	"github.com/PortNumber53/resto-entitlements/internal/models"
)

const tenantColumns = `id, name, subscription_plan_id, subscription_status,
	subscription_trial_ends_at, subscription_expires_at, is_trial_used,
	created_at, updated_at`

func scanTenant(row rowScanner) (*models.Tenant, error) {
	var (
		t         models.Tenant
		status    string
		trialEnds sql.NullTime
		expires   sql.NullTime
	)
	if err := row.Scan(
		&t.ID, &t.Name, &t.SubscriptionPlanID, &status,
		&trialEnds, &expires, &t.IsTrialUsed,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.SubscriptionStatus = models.SubscriptionStatus(status)
	t.SubscriptionTrialEndsAt = nullTimePtr(trialEnds)
	t.SubscriptionExpiresAt = nullTimePtr(expires)
	return &t, nil
}

// GetTenant returns the subscription view of a restaurant.
func (s *queries) GetTenant(ctx context.Context, id int64) (*models.Tenant, error) {
	t, err := scanTenant(s.q.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM restaurants WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("restaurant", id)
		}
		return nil, fmt.Errorf("get restaurant %d: %w", id, err)
	}
	return t, nil
}

// UpdateTenantSubscription writes the subscription columns of t.
func (s *queries) UpdateTenantSubscription(ctx context.Context, t *models.Tenant) error {
	err := s.q.QueryRowContext(ctx,
		`UPDATE restaurants
		 SET subscription_plan_id = $2,
		     subscription_status = $3,
		     subscription_trial_ends_at = $4,
		     subscription_expires_at = $5,
		     is_trial_used = $6,
		     updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		t.ID, t.SubscriptionPlanID, string(t.SubscriptionStatus),
		timeArg(t.SubscriptionTrialEndsAt), timeArg(t.SubscriptionExpiresAt), t.IsTrialUsed,
	).Scan(&t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("restaurant", t.ID)
		}
		return fmt.Errorf("update restaurant %d subscription: %w", t.ID, err)
	}
	return nil
}

// ListTenants returns the restaurants the filter selects, ordered by id.
func (s *queries) ListTenants(ctx context.Context, filter models.TenantFilter) ([]models.Tenant, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.IDs) > 0 {
		args = append(args, pq.Array(filter.IDs))
		where = append(where, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if filter.PlanID != nil {
		args = append(args, *filter.PlanID)
		where = append(where, fmt.Sprintf("subscription_plan_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, fmt.Sprintf("subscription_status = $%d", len(args)))
	}

	query := `SELECT ` + tenantColumns + ` FROM restaurants`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan restaurant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

// ListExpiredTrialTenants returns restaurants in trial whose trial ended
// before now.
func (s *queries) ListExpiredTrialTenants(ctx context.Context, now time.Time) ([]int64, error) {
	return s.listIDs(ctx, "expired trials",
		`SELECT id FROM restaurants
		 WHERE subscription_status = 'trial'
		   AND subscription_trial_ends_at IS NOT NULL
		   AND subscription_trial_ends_at < $1
		 ORDER BY id`,
		now.UTC())
}

// ListLapsedSubscriptionTenants returns active or trial restaurants whose
// subscription expiry is before now.
func (s *queries) ListLapsedSubscriptionTenants(ctx context.Context, now time.Time) ([]int64, error) {
	return s.listIDs(ctx, "lapsed subscriptions",
		`SELECT id FROM restaurants
		 WHERE subscription_status IN ('active', 'trial')
		   AND subscription_expires_at IS NOT NULL
		   AND subscription_expires_at < $1
		 ORDER BY id`,
		now.UTC())
}

func (s *queries) listIDs(ctx context.Context, what, query string, args ...any) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
