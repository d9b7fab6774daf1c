package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/PortNumber53/resto-entitlements/internal/apperrors"
	"github.com/PortNumber53/resto-entitlements/internal/models"
	"github.com/PortNumber53/resto-entitlements/internal/overlay"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	s, err := New(db)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return s, mock
}

func planRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "slug", "name", "price_monthly", "price_yearly", "features", "limits",
		"is_visible", "is_legacy", "is_active", "trial_enabled", "trial_days", "trial_plan_id",
		"created_at", "updated_at",
	}).AddRow(
		int64(1), "free", "Free", int64(0), int64(0), "{analytics.basic,menu.*}", `{"tables": 5, "products": null}`,
		true, false, true, true, 14, int64(2),
		now, now,
	)
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error when db is nil")
	}
}

func TestGetPlanByIDSuccess(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM plans WHERE id = $1`)).
		WithArgs(int64(1)).
		WillReturnRows(planRow(now))

	p, err := s.GetPlanByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetPlanByID returned error: %v", err)
	}
	if p.Slug != "free" {
		t.Fatalf("unexpected slug: %s", p.Slug)
	}
	if len(p.Features) != 2 || p.Features[1] != "menu.*" {
		t.Fatalf("unexpected features: %v", p.Features)
	}
	if _, ok := p.Limits["products"]; ok {
		t.Fatal("expected null limit to be dropped")
	}
	if p.Limits["tables"] != 5 {
		t.Fatalf("unexpected tables limit: %d", p.Limits["tables"])
	}
	if p.TrialPlanID == nil || *p.TrialPlanID != 2 {
		t.Fatalf("unexpected trial plan id: %v", p.TrialPlanID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetPlanBySlugNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM plans WHERE slug = $1`)).
		WithArgs("gold").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetPlanBySlug(context.Background(), "gold")
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreatePlanDuplicateSlug(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO plans`)).
		WillReturnError(&pq.Error{Code: pgUniqueViolation})

	err := s.CreatePlan(context.Background(), &models.Plan{Slug: "pro", Name: "Pro"})
	if !apperrors.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreatePlanReturnsID(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO plans`)).
		WithArgs("pro", "Pro", int64(2900), int64(29000), sqlmock.AnyArg(), sqlmock.AnyArg(),
			true, false, true, false, 0, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(7), now, now))

	p := &models.Plan{
		Slug: "pro", Name: "Pro", PriceMonthly: 2900, PriceYearly: 29000,
		Features: []string{"analytics.*"}, Limits: models.Limits{"tables": -1},
		IsVisible: true, IsActive: true,
	}
	if err := s.CreatePlan(context.Background(), p); err != nil {
		t.Fatalf("CreatePlan returned error: %v", err)
	}
	if p.ID != 7 {
		t.Fatalf("expected id 7, got %d", p.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListPlansFiltersVisible(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM plans WHERE is_active AND is_visible ORDER BY id`).
		WillReturnRows(planRow(now))

	plans, err := s.ListPlans(context.Background(), models.PlanFilter{OnlyActive: true, OnlyVisible: true})
	if err != nil {
		t.Fatalf("ListPlans returned error: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("expected 1 plan, got %d", len(plans))
	}
}

func TestWithTenantLockCommits(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM restaurants WHERE id = $1 FOR UPDATE`)).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE restaurants`)).
		WithArgs(int64(4), int64(2), "active", nil, nil, true).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	err := s.WithTenantLock(context.Background(), 4, func(ctx context.Context, repo overlay.Repository) error {
		return repo.UpdateTenantSubscription(ctx, &models.Tenant{
			ID:                 4,
			SubscriptionPlanID: 2,
			SubscriptionStatus: models.StatusActive,
			IsTrialUsed:        true,
		})
	})
	if err != nil {
		t.Fatalf("WithTenantLock returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTenantLockRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := s.WithTenantLock(context.Background(), 4, func(ctx context.Context, repo overlay.Repository) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTenantLockMissingRestaurant(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	called := false
	err := s.WithTenantLock(context.Background(), 99, func(ctx context.Context, repo overlay.Repository) error {
		called = true
		return nil
	})
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if called {
		t.Fatal("fn must not run for a missing restaurant")
	}
}

func TestCreateTemporaryUpgradeConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO temporary_upgrades`)).
		WillReturnError(&pq.Error{Code: pgUniqueViolation})

	err := s.CreateTemporaryUpgrade(context.Background(), &models.TemporaryUpgrade{RestaurantID: 3, IsActive: true})
	if !apperrors.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDeactivateUnknownUpgrade(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE temporary_upgrades`)).
		WithArgs(int64(5), at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	if err := s.DeactivateTemporaryUpgrade(context.Background(), 5, at); !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeactivateInactiveUpgradeIsNoop(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE temporary_upgrades`)).
		WithArgs(int64(5), at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	if err := s.DeactivateTemporaryUpgrade(context.Background(), 5, at); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestListTenantsBuildsFilter(t *testing.T) {
	s, mock := newMockStore(t)
	plan := int64(1)
	status := models.StatusActive

	mock.ExpectQuery(regexp.QuoteMeta(`FROM restaurants WHERE id = ANY($1) AND subscription_plan_id = $2 AND subscription_status = $3 ORDER BY id`)).
		WithArgs(sqlmock.AnyArg(), int64(1), "active").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "subscription_plan_id", "subscription_status",
			"subscription_trial_ends_at", "subscription_expires_at", "is_trial_used",
			"created_at", "updated_at",
		}).AddRow(int64(3), "Bistro", int64(1), "active", nil, nil, false, time.Now(), time.Now()))

	tenants, err := s.ListTenants(context.Background(), models.TenantFilter{IDs: []int64{3, 4}, PlanID: &plan, Status: &status})
	if err != nil {
		t.Fatalf("ListTenants returned error: %v", err)
	}
	if len(tenants) != 1 || tenants[0].ID != 3 {
		t.Fatalf("unexpected tenants: %+v", tenants)
	}
	if tenants[0].SubscriptionTrialEndsAt != nil {
		t.Fatal("expected nil trial end")
	}
}

func TestListExpiredTrialTenants(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`subscription_trial_ends_at < $1`)).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)).AddRow(int64(9)))

	ids, err := s.ListExpiredTrialTenants(context.Background(), now)
	if err != nil {
		t.Fatalf("ListExpiredTrialTenants returned error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 9 {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestListEventsQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	restaurant := int64(3)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE restaurant_id = $1 ORDER BY id DESC LIMIT $2`)).
		WithArgs(int64(3), models.MaxEventListLimit).
		WillReturnError(errors.New("boom"))

	if _, err := s.ListEvents(context.Background(), models.EventFilter{RestaurantID: &restaurant}); err == nil {
		t.Fatal("expected error when query fails")
	}
}

func TestListEventsHonoursLimitUpToMax(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY id DESC LIMIT $1`)).
		WithArgs(300).
		WillReturnRows(sqlmock.NewRows([]string{"id", "restaurant_id", "event_type", "event_data", "created_at"}).
			AddRow(int64(1), int64(3), "access.denied", `{}`, now))

	events, err := s.ListEvents(context.Background(), models.EventFilter{Limit: 300})
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY id DESC LIMIT $1`)).
		WithArgs(models.MaxEventListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "restaurant_id", "event_type", "event_data", "created_at"}))

	if _, err := s.ListEvents(context.Background(), models.EventFilter{Limit: 10_000}); err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
