package overlay_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/resto-entitlements/internal/apperrors"
	"github.com/PortNumber53/resto-entitlements/internal/audit"
	"github.com/PortNumber53/resto-entitlements/internal/clock"
	"github.com/PortNumber53/resto-entitlements/internal/models"
	"github.com/PortNumber53/resto-entitlements/internal/overlay"
	"github.com/PortNumber53/resto-entitlements/internal/store/memory"
)

type fixture struct {
	store   *memory.Store
	clock   *clock.Fake
	manager *overlay.Manager
	free    *models.Plan
	pro     *models.Plan
	premium *models.Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store: memory.New(),
		clock: clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.store.SetNow(f.clock.Now)

	f.free = &models.Plan{Slug: "free", Name: "Free", Features: []string{"analytics.basic"}, IsActive: true, IsVisible: true}
	f.pro = &models.Plan{Slug: "pro", Name: "Pro", PriceMonthly: 2900, Features: []string{"analytics.*"}, IsActive: true, IsVisible: true}
	f.premium = &models.Plan{Slug: "premium", Name: "Premium", PriceMonthly: 9900, Features: []string{"*"}, IsActive: true, IsVisible: true}
	for _, p := range []*models.Plan{f.free, f.pro, f.premium} {
		require.NoError(t, f.store.CreatePlan(ctx, p))
	}

	m, err := overlay.NewManager(f.store, overlay.Options{
		Clock:    f.clock,
		Recorder: audit.NewRecorder(f.store, f.clock, nil),
	})
	require.NoError(t, err)
	f.manager = m
	return f
}

func (f *fixture) tenant(t *testing.T, planID int64, status models.SubscriptionStatus) *models.Tenant {
	t.Helper()
	tn := &models.Tenant{Name: "Bistro", SubscriptionPlanID: planID, SubscriptionStatus: status}
	require.NoError(t, f.store.CreateTenant(context.Background(), tn))
	return tn
}

func (f *fixture) events(t *testing.T, restaurantID int64) []models.SubscriptionEvent {
	t.Helper()
	events, err := f.store.ListEvents(context.Background(), models.EventFilter{RestaurantID: &restaurantID})
	require.NoError(t, err)
	return events
}

func (f *fixture) enableTrial(t *testing.T, days int, planID int64) {
	t.Helper()
	base, err := f.store.GetPlanBySlug(context.Background(), "free")
	require.NoError(t, err)
	base.TrialEnabled = true
	base.TrialDays = days
	base.TrialPlanID = &planID
	require.NoError(t, f.store.UpdatePlan(context.Background(), base))
}

func TestNewManagerRequiresStore(t *testing.T) {
	_, err := overlay.NewManager(nil, overlay.Options{})
	assert.Error(t, err)
}

func TestUpgradeRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.tenant(t, f.free.ID, models.StatusActive)

	u, err := f.manager.CreateTemporaryUpgrade(ctx, overlay.GrantRequest{
		RestaurantID: tn.ID, TemporaryPlanID: f.pro.ID, DurationDays: 10, Reason: "promo",
	})
	require.NoError(t, err)
	assert.Equal(t, f.free.ID, u.OriginalPlanID)
	assert.Equal(t, models.StatusActive, u.OriginalStatus)
	assert.Equal(t, f.clock.Now().Add(10*24*time.Hour), u.ExpiresAt)

	during, err := f.manager.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, f.pro.ID, during.SubscriptionPlanID)
	assert.Equal(t, models.StatusActive, during.SubscriptionStatus, "the overlay leaves status untouched")

	restored, err := f.manager.RestoreOriginalPlan(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, restored)

	after, err := f.manager.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, tn.SubscriptionPlanID, after.SubscriptionPlanID)
	assert.Equal(t, tn.SubscriptionStatus, after.SubscriptionStatus)

	active, err := f.manager.ActiveUpgrade(ctx, tn.ID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestRestoreIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.tenant(t, f.free.ID, models.StatusActive)

	u, err := f.manager.CreateTemporaryUpgrade(ctx, overlay.GrantRequest{
		RestaurantID: tn.ID, TemporaryPlanID: f.pro.ID, DurationDays: 3, Reason: "support",
	})
	require.NoError(t, err)

	_, err = f.manager.RestoreOriginalPlan(ctx, u.ID)
	require.NoError(t, err)
	first, err := f.manager.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	eventsAfterFirst := len(f.events(t, tn.ID))

	f.clock.Advance(time.Hour)
	restored, err := f.manager.RestoreOriginalPlan(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, restored)

	second, err := f.manager.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, f.events(t, tn.ID), eventsAfterFirst)

	events := f.events(t, tn.ID)
	assert.Equal(t, models.EventTempUpgradeExpired, events[0].EventType)
	assert.Equal(t, models.EventTemporaryUpgrade, events[1].EventType)
}

func TestRestoreClearsSubscriptionExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.tenant(t, f.free.ID, models.StatusActive)
	expires := f.clock.Now().Add(30 * 24 * time.Hour)
	tn.SubscriptionExpiresAt = &expires
	require.NoError(t, f.store.UpdateTenantSubscription(ctx, tn))

	u, err := f.manager.CreateTemporaryUpgrade(ctx, overlay.GrantRequest{
		RestaurantID: tn.ID, TemporaryPlanID: f.pro.ID, DurationDays: 3, Reason: "promo",
	})
	require.NoError(t, err)
	_, err = f.manager.RestoreOriginalPlan(ctx, u.ID)
	require.NoError(t, err)

	after, err := f.manager.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Nil(t, after.SubscriptionExpiresAt)
}

func TestRevokeEmitsRevokedEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.tenant(t, f.free.ID, models.StatusCancelled)

	u, err := f.manager.CreateTemporaryUpgrade(ctx, overlay.GrantRequest{
		RestaurantID: tn.ID, TemporaryPlanID: f.pro.ID, DurationDays: 3, Reason: "promo", GrantedBy: "ops@example.com",
	})
	require.NoError(t, err)

	revoked, err := f.manager.RevokeTemporaryUpgrade(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	after, err := f.manager.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, after.SubscriptionStatus)

	events := f.events(t, tn.ID)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventTempUpgradeRevoked, events[0].EventType)
	assert.Equal(t, "ops@example.com", events[1].EventData["granted_by"])
}

func TestRestoreUnknownUpgrade(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.RestoreOriginalPlan(context.Background(), 404)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestOverlappingUpgradeReplacesActiveOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.tenant(t, f.free.ID, models.StatusActive)

	first, err := f.manager.CreateTemporaryUpgrade(ctx, overlay.GrantRequest{
		RestaurantID: tn.ID, TemporaryPlanID: f.pro.ID, DurationDays: 5, Reason: "promo",
	})
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	second, err := f.manager.CreateTemporaryUpgrade(ctx, overlay.GrantRequest{
		RestaurantID: tn.ID, TemporaryPlanID: f.premium.ID, DurationDays: 7, Reason: "escalation",
	})
	require.NoError(t, err)

	assert.Equal(t, f.free.ID, second.OriginalPlanID, "replacement inherits the nominal plan")

	history, err := f.manager.ListUpgrades(ctx, tn.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.True(t, history[0].IsActive)
	assert.False(t, history[1].IsActive)
	require.NotNil(t, history[1].DeactivatedAt)

	events := f.events(t, tn.ID)
	assert.Equal(t, first.ID, events[0].EventData["replaced_upgrade_id"])

	_, err = f.manager.RestoreOriginalPlan(ctx, second.ID)
	require.NoError(t, err)
	after, err := f.manager.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, f.free.ID, after.SubscriptionPlanID)
}

func TestCreateTemporaryUpgradeRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.tenant(t, f.pro.ID, models.StatusActive)

	inactive := &models.Plan{Slug: "retired", Name: "Retired"}
	require.NoError(t, f.store.CreatePlan(ctx, inactive))

	tests := []struct {
		name  string
		req   overlay.GrantRequest
		check func(error) bool
	}{
		{"same_plan", overlay.GrantRequest{RestaurantID: tn.ID, TemporaryPlanID: f.pro.ID, DurationDays: 3, Reason: "x"}, apperrors.IsInvalidInput},
		{"zero_days", overlay.GrantRequest{RestaurantID: tn.ID, TemporaryPlanID: f.premium.ID, DurationDays: 0, Reason: "x"}, apperrors.IsInvalidInput},
		{"negative_days", overlay.GrantRequest{RestaurantID: tn.ID, TemporaryPlanID: f.premium.ID, DurationDays: -2, Reason: "x"}, apperrors.IsInvalidInput},
		{"missing_reason", overlay.GrantRequest{RestaurantID: tn.ID, TemporaryPlanID: f.premium.ID, DurationDays: 3, Reason: "  "}, apperrors.IsInvalidInput},
		{"inactive_plan", overlay.GrantRequest{RestaurantID: tn.ID, TemporaryPlanID: inactive.ID, DurationDays: 3, Reason: "x"}, apperrors.IsInvalidInput},
		{"unknown_plan", overlay.GrantRequest{RestaurantID: tn.ID, TemporaryPlanID: 999, DurationDays: 3, Reason: "x"}, apperrors.IsNotFound},
		{"unknown_restaurant", overlay.GrantRequest{RestaurantID: 999, TemporaryPlanID: f.premium.ID, DurationDays: 3, Reason: "x"}, apperrors.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.CreateTemporaryUpgrade(ctx, tt.req)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}

	assert.Empty(t, f.events(t, tn.ID))
	history, err := f.manager.ListUpgrades(ctx, tn.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestBatchIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.tenant(t, f.free.ID, models.StatusActive)
	b := f.tenant(t, f.free.ID, models.StatusActive)
	c := f.tenant(t, f.free.ID, models.StatusActive)
	f.tenant(t, f.pro.ID, models.StatusActive)

	f.store.OnUpdateTenant = func(t *models.Tenant) error {
		if t.ID == b.ID {
			return errors.New("connection reset")
		}
		return nil
	}

	freeID := f.free.ID
	res, err := f.manager.BatchTemporaryUpgrade(ctx, overlay.BatchRequest{
		Filter:          models.TenantFilter{PlanID: &freeID},
		TemporaryPlanID: f.premium.ID,
		DurationDays:    14,
		Reason:          "spring campaign",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.BatchID)

	require.Len(t, res.Succeeded, 2)
	assert.Equal(t, a.ID, res.Succeeded[0].RestaurantID)
	assert.Equal(t, c.ID, res.Succeeded[1].RestaurantID)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, b.ID, res.Failed[0].RestaurantID)
	assert.Contains(t, res.Failed[0].Error, "connection reset")

	f.store.OnUpdateTenant = nil

	failed, err := f.manager.GetTenant(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, f.free.ID, failed.SubscriptionPlanID)
	history, err := f.manager.ListUpgrades(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, history, "failed item leaves no upgrade row")

	events := f.events(t, a.ID)
	require.Len(t, events, 1)
	assert.Equal(t, res.BatchID, events[0].EventData["batch_id"])
}

func TestBatchValidatesUpFront(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.BatchTemporaryUpgrade(ctx, overlay.BatchRequest{
		TemporaryPlanID: f.premium.ID, DurationDays: 3, Reason: "x",
	})
	assert.True(t, apperrors.IsInvalidInput(err), "empty filter selects nothing")

	freeID := f.free.ID
	_, err = f.manager.BatchTemporaryUpgrade(ctx, overlay.BatchRequest{
		Filter: models.TenantFilter{PlanID: &freeID}, TemporaryPlanID: f.premium.ID, DurationDays: 0, Reason: "x",
	})
	assert.True(t, apperrors.IsInvalidInput(err))
}

func TestAssignTrial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enableTrial(t, 14, f.premium.ID)
	tn := f.tenant(t, f.free.ID, models.StatusActive)

	got, err := f.manager.AssignTrial(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, f.premium.ID, got.SubscriptionPlanID)
	assert.Equal(t, models.StatusTrial, got.SubscriptionStatus)
	assert.True(t, got.IsTrialUsed)
	require.NotNil(t, got.SubscriptionTrialEndsAt)
	assert.Equal(t, f.clock.Now().Add(14*24*time.Hour), *got.SubscriptionTrialEndsAt)

	events := f.events(t, tn.ID)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTrialStarted, events[0].EventType)

	_, err = f.manager.AssignTrial(ctx, tn.ID)
	assert.True(t, apperrors.IsConflict(err))
}

func TestAssignTrialDisabledFallsBackToBaseline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.tenant(t, f.pro.ID, models.StatusSuspended)

	got, err := f.manager.AssignTrial(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, f.free.ID, got.SubscriptionPlanID)
	assert.Equal(t, models.StatusActive, got.SubscriptionStatus)
	assert.Nil(t, got.SubscriptionTrialEndsAt)
	assert.False(t, got.IsTrialUsed)

	events := f.events(t, tn.ID)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventPlanAssigned, events[0].EventType)
}

func TestAssignTrialRejectsActiveUpgrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enableTrial(t, 14, f.premium.ID)
	tn := f.tenant(t, f.free.ID, models.StatusActive)

	_, err := f.manager.CreateTemporaryUpgrade(ctx, overlay.GrantRequest{
		RestaurantID: tn.ID, TemporaryPlanID: f.pro.ID, DurationDays: 3, Reason: "promo",
	})
	require.NoError(t, err)

	_, err = f.manager.AssignTrial(ctx, tn.ID)
	assert.True(t, apperrors.IsConflict(err))
}

func TestDowngradeToFreeEndsActiveUpgrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.tenant(t, f.pro.ID, models.StatusActive)

	u, err := f.manager.CreateTemporaryUpgrade(ctx, overlay.GrantRequest{
		RestaurantID: tn.ID, TemporaryPlanID: f.premium.ID, DurationDays: 3, Reason: "promo",
	})
	require.NoError(t, err)

	require.NoError(t, f.manager.DowngradeToFree(ctx, tn.ID, overlay.ReasonManual))

	after, err := f.manager.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, f.free.ID, after.SubscriptionPlanID)
	assert.Equal(t, models.StatusActive, after.SubscriptionStatus)

	active, err := f.manager.ActiveUpgrade(ctx, tn.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	events := f.events(t, tn.ID)
	assert.Equal(t, models.EventDowngraded, events[0].EventType)
	assert.Equal(t, "manual", events[0].EventData["reason"])
	assert.Equal(t, u.ID, events[0].EventData["deactivated_upgrade_id"])
}

func TestExpireTrialIsGuarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enableTrial(t, 7, f.premium.ID)
	tn := f.tenant(t, f.free.ID, models.StatusActive)
	_, err := f.manager.AssignTrial(ctx, tn.ID)
	require.NoError(t, err)

	applied, err := f.manager.ExpireTrial(ctx, tn.ID)
	require.NoError(t, err)
	assert.False(t, applied, "trial still running")

	f.clock.Advance(8 * 24 * time.Hour)
	applied, err = f.manager.ExpireTrial(ctx, tn.ID)
	require.NoError(t, err)
	assert.True(t, applied)

	after, err := f.manager.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, f.free.ID, after.SubscriptionPlanID)
	assert.Equal(t, models.StatusActive, after.SubscriptionStatus)
	assert.Nil(t, after.SubscriptionTrialEndsAt)
	assert.True(t, after.IsTrialUsed)

	applied, err = f.manager.ExpireTrial(ctx, tn.ID)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestUpdateSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.tenant(t, f.pro.ID, models.StatusActive)

	expired := models.StatusExpired
	got, err := f.manager.UpdateSubscription(ctx, tn.ID, overlay.SubscriptionUpdate{Status: &expired})
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.SubscriptionStatus)
	assert.Equal(t, f.pro.ID, got.SubscriptionPlanID)

	trial := models.StatusTrial
	_, err = f.manager.UpdateSubscription(ctx, tn.ID, overlay.SubscriptionUpdate{Status: &trial})
	assert.True(t, apperrors.IsInvalidInput(err))

	bogus := models.SubscriptionStatus("paused")
	_, err = f.manager.UpdateSubscription(ctx, tn.ID, overlay.SubscriptionUpdate{Status: &bogus})
	assert.True(t, apperrors.IsInvalidInput(err))

	_, err = f.manager.UpdateSubscription(ctx, tn.ID, overlay.SubscriptionUpdate{})
	assert.True(t, apperrors.IsInvalidInput(err))

	missing := int64(999)
	_, err = f.manager.UpdateSubscription(ctx, tn.ID, overlay.SubscriptionUpdate{PlanID: &missing})
	assert.True(t, apperrors.IsNotFound(err))

	events := f.events(t, tn.ID)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventSubscriptionUpdated, events[0].EventType)
	assert.Equal(t, "expired", events[0].EventData["status"])
}

func TestUpdateSubscriptionPlanBlockedByActiveUpgrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.tenant(t, f.free.ID, models.StatusActive)

	_, err := f.manager.CreateTemporaryUpgrade(ctx, overlay.GrantRequest{
		RestaurantID: tn.ID, TemporaryPlanID: f.premium.ID, DurationDays: 3, Reason: "promo",
	})
	require.NoError(t, err)

	_, err = f.manager.UpdateSubscription(ctx, tn.ID, overlay.SubscriptionUpdate{PlanID: &f.pro.ID})
	assert.True(t, apperrors.IsConflict(err))
}

func TestMutationsSurviveAuditFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.tenant(t, f.free.ID, models.StatusActive)
	f.store.OnAppendEvent = func(*models.SubscriptionEvent) error { return errors.New("events table locked") }

	u, err := f.manager.CreateTemporaryUpgrade(ctx, overlay.GrantRequest{
		RestaurantID: tn.ID, TemporaryPlanID: f.pro.ID, DurationDays: 3, Reason: "promo",
	})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
}

func TestUpdateSubscriptionStatusAndExpiryBlockedByActiveUpgrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.tenant(t, f.free.ID, models.StatusActive)

	u, err := f.manager.CreateTemporaryUpgrade(ctx, overlay.GrantRequest{
		RestaurantID: tn.ID, TemporaryPlanID: f.pro.ID, DurationDays: 3, Reason: "promo",
	})
	require.NoError(t, err)

	suspended := models.StatusSuspended
	_, err = f.manager.UpdateSubscription(ctx, tn.ID, overlay.SubscriptionUpdate{Status: &suspended})
	assert.True(t, apperrors.IsConflict(err), "got %v", err)

	expiry := f.clock.Now().Add(30 * 24 * time.Hour)
	_, err = f.manager.UpdateSubscription(ctx, tn.ID, overlay.SubscriptionUpdate{ExpiresAt: &expiry})
	assert.True(t, apperrors.IsConflict(err), "got %v", err)

	during, err := f.manager.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, during.SubscriptionStatus)
	assert.Nil(t, during.SubscriptionExpiresAt)

	_, err = f.manager.RevokeTemporaryUpgrade(ctx, u.ID)
	require.NoError(t, err)

	got, err := f.manager.UpdateSubscription(ctx, tn.ID, overlay.SubscriptionUpdate{Status: &suspended})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuspended, got.SubscriptionStatus)
	assert.Equal(t, f.free.ID, got.SubscriptionPlanID)
}

func TestBatchReportsUnknownRestaurantIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.tenant(t, f.free.ID, models.StatusActive)
	onPro := f.tenant(t, f.pro.ID, models.StatusActive)

	freeID := f.free.ID
	res, err := f.manager.BatchTemporaryUpgrade(ctx, overlay.BatchRequest{
		Filter:          models.TenantFilter{IDs: []int64{a.ID, 999, onPro.ID, 999}, PlanID: &freeID},
		TemporaryPlanID: f.premium.ID,
		DurationDays:    7,
		Reason:          "spring campaign",
	})
	require.NoError(t, err)

	require.Len(t, res.Succeeded, 1)
	assert.Equal(t, a.ID, res.Succeeded[0].RestaurantID)
	require.Len(t, res.Failed, 1, "restaurants excluded by other criteria are not failures")
	assert.Equal(t, int64(999), res.Failed[0].RestaurantID)
	assert.Contains(t, res.Failed[0].Error, "not found")
}

func TestReplacementCannotTargetNominalPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.tenant(t, f.free.ID, models.StatusActive)

	first, err := f.manager.CreateTemporaryUpgrade(ctx, overlay.GrantRequest{
		RestaurantID: tn.ID, TemporaryPlanID: f.pro.ID, DurationDays: 5, Reason: "promo",
	})
	require.NoError(t, err)

	_, err = f.manager.CreateTemporaryUpgrade(ctx, overlay.GrantRequest{
		RestaurantID: tn.ID, TemporaryPlanID: f.free.ID, DurationDays: 5, Reason: "oops",
	})
	assert.True(t, apperrors.IsInvalidInput(err), "got %v", err)

	history, err := f.manager.ListUpgrades(ctx, tn.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, first.ID, history[0].ID)
	assert.True(t, history[0].IsActive)

	after, err := f.manager.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, f.pro.ID, after.SubscriptionPlanID)
}

// failingCommitStore runs fn against the memory store, then reports a
// commit failure.
type failingCommitStore struct {
	*memory.Store
}

func (s failingCommitStore) WithTenantLock(ctx context.Context, tenantID int64, fn func(ctx context.Context, repo overlay.Repository) error) error {
	if err := s.Store.WithTenantLock(ctx, tenantID, fn); err != nil {
		return err
	}
	return errors.New("commit failed")
}

func TestDowngradeLogsOnlyAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.tenant(t, f.pro.ID, models.StatusActive)

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	m, err := overlay.NewManager(failingCommitStore{f.store}, overlay.Options{Clock: f.clock})
	require.NoError(t, err)

	err = m.DowngradeToFree(ctx, tn.ID, overlay.ReasonManual)
	require.Error(t, err)
	assert.NotContains(t, buf.String(), "Restaurant downgraded")

	require.NoError(t, f.manager.DowngradeToFree(ctx, tn.ID, overlay.ReasonManual))
	assert.Contains(t, buf.String(), "Restaurant downgraded")
}
