package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/PortNumber53/resto-entitlements/internal/apperrors"
	"github.com/PortNumber53/resto-entitlements/internal/models"
)

const upgradeColumns = `id, restaurant_id, original_plan_id, original_status, temporary_plan_id,
	expires_at, reason, granted_by, is_active, created_at, deactivated_at`

func scanUpgrade(row rowScanner) (*models.TemporaryUpgrade, error) {
	var (
		u           models.TemporaryUpgrade
		status      string
		deactivated sql.NullTime
	)
	if err := row.Scan(
		&u.ID, &u.RestaurantID, &u.OriginalPlanID, &status, &u.TemporaryPlanID,
		&u.ExpiresAt, &u.Reason, &u.GrantedBy, &u.IsActive, &u.CreatedAt, &deactivated,
	); err != nil {
		return nil, err
	}
	u.OriginalStatus = models.SubscriptionStatus(status)
	u.DeactivatedAt = nullTimePtr(deactivated)
	return &u, nil
}

// CreateTemporaryUpgrade inserts u. A second active upgrade for the same
// restaurant violates the partial unique index and returns a conflict.
func (s *queries) CreateTemporaryUpgrade(ctx context.Context, u *models.TemporaryUpgrade) error {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO temporary_upgrades (restaurant_id, original_plan_id, original_status,
			temporary_plan_id, expires_at, reason, granted_by, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		u.RestaurantID, u.OriginalPlanID, string(u.OriginalStatus),
		u.TemporaryPlanID, u.ExpiresAt.UTC(), u.Reason, u.GrantedBy, u.IsActive, u.CreatedAt.UTC(),
	).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("restaurant %d already has an active temporary upgrade", u.RestaurantID)
		}
		return fmt.Errorf("insert temporary upgrade: %w", err)
	}
	return nil
}

// GetTemporaryUpgrade returns an upgrade by id.
func (s *queries) GetTemporaryUpgrade(ctx context.Context, id int64) (*models.TemporaryUpgrade, error) {
	u, err := scanUpgrade(s.q.QueryRowContext(ctx,
		`SELECT `+upgradeColumns+` FROM temporary_upgrades WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("temporary upgrade", id)
		}
		return nil, fmt.Errorf("get temporary upgrade %d: %w", id, err)
	}
	return u, nil
}

// GetActiveTemporaryUpgrade returns the restaurant's active upgrade.
func (s *queries) GetActiveTemporaryUpgrade(ctx context.Context, restaurantID int64) (*models.TemporaryUpgrade, error) {
	u, err := scanUpgrade(s.q.QueryRowContext(ctx,
		`SELECT `+upgradeColumns+` FROM temporary_upgrades
		 WHERE restaurant_id = $1 AND is_active
		 LIMIT 1`, restaurantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("active temporary upgrade for restaurant", restaurantID)
		}
		return nil, fmt.Errorf("get active temporary upgrade for restaurant %d: %w", restaurantID, err)
	}
	return u, nil
}

// DeactivateTemporaryUpgrade clears is_active. Deactivating an inactive
// upgrade is a no-op.
func (s *queries) DeactivateTemporaryUpgrade(ctx context.Context, id int64, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE temporary_upgrades
		 SET is_active = FALSE, deactivated_at = $2
		 WHERE id = $1 AND is_active`,
		id, at.UTC())
	if err != nil {
		return fmt.Errorf("deactivate temporary upgrade %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists bool
		if err := s.q.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM temporary_upgrades WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check temporary upgrade %d: %w", id, err)
		}
		if !exists {
			return apperrors.NotFound("temporary upgrade", id)
		}
	}
	return nil
}

// ListTemporaryUpgrades returns the restaurant's upgrades, newest first.
func (s *queries) ListTemporaryUpgrades(ctx context.Context, restaurantID int64) ([]models.TemporaryUpgrade, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+upgradeColumns+` FROM temporary_upgrades
		 WHERE restaurant_id = $1
		 ORDER BY id DESC
		 LIMIT $2`, restaurantID, defaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("list temporary upgrades: %w", err)
	}
	defer rows.Close()

	var upgrades []models.TemporaryUpgrade
	for rows.Next() {
		u, err := scanUpgrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan temporary upgrade: %w", err)
		}
		upgrades = append(upgrades, *u)
	}
	return upgrades, rows.Err()
}

// ListExpiredTemporaryUpgrades returns ids of active upgrades whose window
// closed before now.
func (s *queries) ListExpiredTemporaryUpgrades(ctx context.Context, now time.Time) ([]int64, error) {
	return s.listIDs(ctx, "expired temporary upgrades",
		`SELECT id FROM temporary_upgrades
		 WHERE is_active AND expires_at < $1
		 ORDER BY id`,
		now.UTC())
}
