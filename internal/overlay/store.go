package overlay

import (
	"context"
	"time"

	"github.com/PortNumber53/resto-entitlements/internal/models"
)

// Repository is the set of reads and writes a lifecycle transition needs.
// Inside WithTenantLock it is bound to the lock-holding transaction.
type Repository interface {
	GetTenant(ctx context.Context, id int64) (*models.Tenant, error)
	UpdateTenantSubscription(ctx context.Context, t *models.Tenant) error

	GetPlanByID(ctx context.Context, id int64) (*models.Plan, error)
	GetPlanBySlug(ctx context.Context, slug string) (*models.Plan, error)

	CreateTemporaryUpgrade(ctx context.Context, u *models.TemporaryUpgrade) error
	GetTemporaryUpgrade(ctx context.Context, id int64) (*models.TemporaryUpgrade, error)
	// GetActiveTemporaryUpgrade returns a not-found error when the
	// restaurant has no active upgrade.
	GetActiveTemporaryUpgrade(ctx context.Context, restaurantID int64) (*models.TemporaryUpgrade, error)
	DeactivateTemporaryUpgrade(ctx context.Context, id int64, at time.Time) error
	ListTemporaryUpgrades(ctx context.Context, restaurantID int64) ([]models.TemporaryUpgrade, error)
}

// Store is the persistence contract of the Manager.
type Store interface {
	Repository

	// WithTenantLock runs fn while holding an exclusive lock on the
	// restaurant row. Writes made through repo commit together when fn
	// returns nil and are discarded otherwise. A missing restaurant
	// returns a not-found error without calling fn.
	WithTenantLock(ctx context.Context, tenantID int64, fn func(ctx context.Context, repo Repository) error) error

	ListTenants(ctx context.Context, filter models.TenantFilter) ([]models.Tenant, error)
}
