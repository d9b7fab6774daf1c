// Package overlay drives the time-boxed plan lifecycle of a restaurant:
// trials, temporary upgrades, their restoration and the fall back to the
// baseline plan.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/resto-entitlements/internal/apperrors"
	"github.com/PortNumber53/resto-entitlements/internal/audit"
	"github.com/PortNumber53/resto-entitlements/internal/clock"
	"github.com/PortNumber53/resto-entitlements/internal/models"
)

const (
	defaultBaselineSlug     = "free"
	defaultBatchItemTimeout = 10 * time.Second
)

// DowngradeReason is recorded on subscription.downgraded events.
type DowngradeReason string

const (
	ReasonTrialExpired        DowngradeReason = "trial_expired"
	ReasonSubscriptionExpired DowngradeReason = "subscription_expired"
	ReasonManual              DowngradeReason = "manual"
)

// Options configures a Manager.
type Options struct {
	// BaselineSlug identifies the floor plan. Defaults to "free".
	BaselineSlug string
	// BatchItemTimeout bounds each tenant of a batch grant. Defaults to 10s.
	BatchItemTimeout time.Duration
	Clock            clock.Clock
	Recorder         *audit.Recorder
}

// Manager applies lifecycle transitions. Every mutation runs under the
// restaurant's lock; audit events are recorded after the mutation commits.
type Manager struct {
	store            Store
	recorder         *audit.Recorder
	clock            clock.Clock
	baselineSlug     string
	batchItemTimeout time.Duration
}

// NewManager creates a Manager.
func NewManager(store Store, opts Options) (*Manager, error) {
	if store == nil {
		return nil, errors.New("overlay: store cannot be nil")
	}
	if strings.TrimSpace(opts.BaselineSlug) == "" {
		opts.BaselineSlug = defaultBaselineSlug
	}
	if opts.BatchItemTimeout <= 0 {
		opts.BatchItemTimeout = defaultBatchItemTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Manager{
		store:            store,
		recorder:         opts.Recorder,
		clock:            opts.Clock,
		baselineSlug:     opts.BaselineSlug,
		batchItemTimeout: opts.BatchItemTimeout,
	}, nil
}

type pendingEvent struct {
	eventType models.EventType
	data      models.JSONB
}

type emitFunc func(eventType models.EventType, data models.JSONB)

// mutate runs fn under the tenant lock and records the events fn emitted
// once the lock's writes have committed.
func (m *Manager) mutate(ctx context.Context, tenantID int64, fn func(ctx context.Context, repo Repository, emit emitFunc) error) error {
	var events []pendingEvent
	err := m.store.WithTenantLock(ctx, tenantID, func(ctx context.Context, repo Repository) error {
		events = events[:0]
		return fn(ctx, repo, func(eventType models.EventType, data models.JSONB) {
			events = append(events, pendingEvent{eventType: eventType, data: data})
		})
	})
	if err != nil {
		return err
	}
	for _, e := range events {
		m.recorder.Record(ctx, tenantID, e.eventType, e.data)
	}
	return nil
}

// GetTenant returns the restaurant's subscription state.
func (m *Manager) GetTenant(ctx context.Context, tenantID int64) (*models.Tenant, error) {
	return m.store.GetTenant(ctx, tenantID)
}

// ActiveUpgrade returns the restaurant's active temporary upgrade, or nil
// when there is none.
func (m *Manager) ActiveUpgrade(ctx context.Context, tenantID int64) (*models.TemporaryUpgrade, error) {
	if _, err := m.store.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	u, err := m.store.GetActiveTemporaryUpgrade(ctx, tenantID)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("overlay: active upgrade for restaurant %d: %w", tenantID, err)
	}
	return u, nil
}

// ListUpgrades returns the restaurant's upgrade history, newest first.
func (m *Manager) ListUpgrades(ctx context.Context, tenantID int64) ([]models.TemporaryUpgrade, error) {
	if _, err := m.store.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	return m.store.ListTemporaryUpgrades(ctx, tenantID)
}

// AssignTrial starts the configured trial for a restaurant that never had
// one. When the trial is disabled the restaurant is put on the baseline
// plan instead.
func (m *Manager) AssignTrial(ctx context.Context, tenantID int64) (*models.Tenant, error) {
	var result *models.Tenant
	err := m.mutate(ctx, tenantID, func(ctx context.Context, repo Repository, emit emitFunc) error {
		t, err := repo.GetTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		if t.IsTrialUsed {
			return apperrors.Conflict("restaurant %d already used its trial", tenantID)
		}
		if err := requireNoActiveUpgrade(ctx, repo, tenantID); err != nil {
			return err
		}

		base, err := repo.GetPlanBySlug(ctx, m.baselineSlug)
		if err != nil {
			return fmt.Errorf("overlay: baseline plan %q: %w", m.baselineSlug, err)
		}

		now := m.clock.Now()
		if !base.TrialEnabled || base.TrialDays <= 0 || base.TrialPlanID == nil {
			t.SubscriptionPlanID = base.ID
			t.SubscriptionStatus = models.StatusActive
			t.SubscriptionTrialEndsAt = nil
			if err := repo.UpdateTenantSubscription(ctx, t); err != nil {
				return fmt.Errorf("overlay: assign baseline plan: %w", err)
			}
			emit(models.EventPlanAssigned, models.JSONB{
				"plan_id": base.ID,
				"reason":  "trial_disabled",
			})
			result = t
			return nil
		}

		trialPlan, err := repo.GetPlanByID(ctx, *base.TrialPlanID)
		if err != nil {
			return fmt.Errorf("overlay: trial plan: %w", err)
		}

		endsAt := now.Add(clock.Days(base.TrialDays))
		t.SubscriptionPlanID = trialPlan.ID
		t.SubscriptionStatus = models.StatusTrial
		t.SubscriptionTrialEndsAt = &endsAt
		t.IsTrialUsed = true
		if err := repo.UpdateTenantSubscription(ctx, t); err != nil {
			return fmt.Errorf("overlay: start trial: %w", err)
		}
		emit(models.EventTrialStarted, models.JSONB{
			"plan_id":       trialPlan.ID,
			"trial_days":    base.TrialDays,
			"trial_ends_at": endsAt,
		})
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("restaurant_id", tenantID).
		Str("status", string(result.SubscriptionStatus)).
		Int64("plan_id", result.SubscriptionPlanID).
		Msg("Trial assigned")
	return result, nil
}

// GrantRequest describes a single temporary upgrade.
type GrantRequest struct {
	RestaurantID    int64  `json:"restaurant_id"`
	TemporaryPlanID int64  `json:"temporary_plan_id"`
	DurationDays    int    `json:"duration_days"`
	Reason          string `json:"reason"`
	GrantedBy       string `json:"granted_by,omitempty"`
}

// CreateTemporaryUpgrade overlays TemporaryPlanID on the restaurant for
// DurationDays. An already active upgrade is replaced and its snapshot of
// the nominal plan carries over to the new one.
func (m *Manager) CreateTemporaryUpgrade(ctx context.Context, req GrantRequest) (*models.TemporaryUpgrade, error) {
	plan, err := m.validateGrant(ctx, req.TemporaryPlanID, req.DurationDays, req.Reason)
	if err != nil {
		return nil, err
	}
	req.Reason = strings.TrimSpace(req.Reason)
	return m.grant(ctx, req, plan, "")
}

func (m *Manager) validateGrant(ctx context.Context, planID int64, days int, reason string) (*models.Plan, error) {
	if days <= 0 {
		return nil, apperrors.Invalid("duration_days", "must be positive")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.Invalid("reason", "is required")
	}
	plan, err := m.store.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, apperrors.Invalid("temporary_plan_id", "plan is not active")
	}
	return plan, nil
}

func (m *Manager) grant(ctx context.Context, req GrantRequest, plan *models.Plan, batchID string) (*models.TemporaryUpgrade, error) {
	var created *models.TemporaryUpgrade
	err := m.mutate(ctx, req.RestaurantID, func(ctx context.Context, repo Repository, emit emitFunc) error {
		t, err := repo.GetTenant(ctx, req.RestaurantID)
		if err != nil {
			return err
		}
		if t.SubscriptionPlanID == plan.ID {
			return apperrors.Invalid("temporary_plan_id", "restaurant is already on this plan")
		}

		now := m.clock.Now()
		u := &models.TemporaryUpgrade{
			RestaurantID:    t.ID,
			OriginalPlanID:  t.SubscriptionPlanID,
			OriginalStatus:  t.SubscriptionStatus,
			TemporaryPlanID: plan.ID,
			ExpiresAt:       now.Add(clock.Days(req.DurationDays)),
			Reason:          req.Reason,
			GrantedBy:       req.GrantedBy,
			IsActive:        true,
			CreatedAt:       now,
		}

		var replacedID int64
		active, err := repo.GetActiveTemporaryUpgrade(ctx, t.ID)
		switch {
		case err == nil:
			if plan.ID == active.OriginalPlanID {
				return apperrors.Invalid("temporary_plan_id", "restaurant's nominal plan is not an upgrade")
			}
			u.OriginalPlanID = active.OriginalPlanID
			u.OriginalStatus = active.OriginalStatus
			if err := repo.DeactivateTemporaryUpgrade(ctx, active.ID, now); err != nil {
				return fmt.Errorf("overlay: replace upgrade %d: %w", active.ID, err)
			}
			replacedID = active.ID
		case !apperrors.IsNotFound(err):
			return fmt.Errorf("overlay: active upgrade: %w", err)
		}

		if err := repo.CreateTemporaryUpgrade(ctx, u); err != nil {
			return fmt.Errorf("overlay: create upgrade: %w", err)
		}
		t.SubscriptionPlanID = plan.ID
		if err := repo.UpdateTenantSubscription(ctx, t); err != nil {
			return fmt.Errorf("overlay: apply upgrade: %w", err)
		}

		data := models.JSONB{
			"upgrade_id":        u.ID,
			"original_plan_id":  u.OriginalPlanID,
			"temporary_plan_id": u.TemporaryPlanID,
			"duration_days":     req.DurationDays,
			"expires_at":        u.ExpiresAt,
			"reason":            u.Reason,
		}
		if u.GrantedBy != "" {
			data["granted_by"] = u.GrantedBy
		}
		if replacedID != 0 {
			data["replaced_upgrade_id"] = replacedID
		}
		if batchID != "" {
			data["batch_id"] = batchID
		}
		emit(models.EventTemporaryUpgrade, data)
		created = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("restaurant_id", req.RestaurantID).
		Int64("upgrade_id", created.ID).
		Int64("temporary_plan_id", created.TemporaryPlanID).
		Time("expires_at", created.ExpiresAt).
		Msg("Temporary upgrade granted")
	return created, nil
}

// BatchRequest grants the same temporary upgrade to every restaurant the
// filter selects.
type BatchRequest struct {
	Filter          models.TenantFilter `json:"filter"`
	TemporaryPlanID int64               `json:"temporary_plan_id"`
	DurationDays    int                 `json:"duration_days"`
	Reason          string              `json:"reason"`
	GrantedBy       string              `json:"granted_by,omitempty"`
}

// BatchGrant is one successful item of a batch.
type BatchGrant struct {
	RestaurantID int64 `json:"restaurant_id"`
	UpgradeID    int64 `json:"upgrade_id"`
}

// BatchFailure is one failed item of a batch.
type BatchFailure struct {
	RestaurantID int64  `json:"restaurant_id"`
	Error        string `json:"error"`
}

// BatchResult reports a batch grant.
type BatchResult struct {
	BatchID   string         `json:"batch_id"`
	Succeeded []BatchGrant   `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

// BatchTemporaryUpgrade applies the grant to each selected restaurant in
// order. A failing restaurant is recorded and the batch continues.
func (m *Manager) BatchTemporaryUpgrade(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if req.Filter.Empty() {
		return nil, apperrors.Invalid("filter", "must select at least one criterion")
	}
	plan, err := m.validateGrant(ctx, req.TemporaryPlanID, req.DurationDays, req.Reason)
	if err != nil {
		return nil, err
	}

	tenants, err := m.store.ListTenants(ctx, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("overlay: list batch restaurants: %w", err)
	}

	result := &BatchResult{
		BatchID:   uuid.NewString(),
		Succeeded: []BatchGrant{},
		Failed:    []BatchFailure{},
	}
	logger := log.With().Str("batch_id", result.BatchID).Logger()

	for _, t := range tenants {
		u, err := m.grantItem(ctx, GrantRequest{
			RestaurantID:    t.ID,
			TemporaryPlanID: plan.ID,
			DurationDays:    req.DurationDays,
			Reason:          strings.TrimSpace(req.Reason),
			GrantedBy:       req.GrantedBy,
		}, plan, result.BatchID)
		if err != nil {
			logger.Warn().Err(err).Int64("restaurant_id", t.ID).Msg("Batch upgrade item failed")
			result.Failed = append(result.Failed, BatchFailure{RestaurantID: t.ID, Error: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, BatchGrant{RestaurantID: t.ID, UpgradeID: u.ID})
	}

	// Explicitly requested restaurants that do not exist are reported as failures.
	listed := make(map[int64]struct{}, len(tenants))
	for _, t := range tenants {
		listed[t.ID] = struct{}{}
	}
	for _, id := range req.Filter.IDs {
		if _, ok := listed[id]; ok {
			continue
		}
		listed[id] = struct{}{}
		_, err := m.store.GetTenant(ctx, id)
		if err == nil {
			// Exists but excluded by the other criteria.
			continue
		}
		if apperrors.IsNotFound(err) {
			err = apperrors.NotFound("restaurant", id)
		}
		logger.Warn().Err(err).Int64("restaurant_id", id).Msg("Batch upgrade item failed")
		result.Failed = append(result.Failed, BatchFailure{RestaurantID: id, Error: err.Error()})
	}

	logger.Info().
		Int("selected", len(tenants)).
		Int("succeeded", len(result.Succeeded)).
		Int("failed", len(result.Failed)).
		Msg("Batch temporary upgrade finished")
	return result, nil
}

func (m *Manager) grantItem(ctx context.Context, req GrantRequest, plan *models.Plan, batchID string) (*models.TemporaryUpgrade, error) {
	itemCtx, cancel := context.WithTimeout(ctx, m.batchItemTimeout)
	defer cancel()
	return m.grant(itemCtx, req, plan, batchID)
}

// RestoreOriginalPlan ends an upgrade and puts back the snapshot plan and
// status. It reports false when the upgrade was already inactive.
func (m *Manager) RestoreOriginalPlan(ctx context.Context, upgradeID int64) (bool, error) {
	return m.restore(ctx, upgradeID, models.EventTempUpgradeExpired)
}

// RevokeTemporaryUpgrade is the operator-initiated restoration.
func (m *Manager) RevokeTemporaryUpgrade(ctx context.Context, upgradeID int64) (bool, error) {
	return m.restore(ctx, upgradeID, models.EventTempUpgradeRevoked)
}

func (m *Manager) restore(ctx context.Context, upgradeID int64, eventType models.EventType) (bool, error) {
	u, err := m.store.GetTemporaryUpgrade(ctx, upgradeID)
	if err != nil {
		return false, err
	}
	if !u.IsActive {
		return false, nil
	}

	restored := false
	err = m.mutate(ctx, u.RestaurantID, func(ctx context.Context, repo Repository, emit emitFunc) error {
		u, err := repo.GetTemporaryUpgrade(ctx, upgradeID)
		if err != nil {
			return err
		}
		if !u.IsActive {
			return nil
		}

		t, err := repo.GetTenant(ctx, u.RestaurantID)
		if err != nil {
			return err
		}
		fromPlan := t.SubscriptionPlanID
		t.SubscriptionPlanID = u.OriginalPlanID
		t.SubscriptionStatus = u.OriginalStatus
		t.SubscriptionExpiresAt = nil
		if err := repo.UpdateTenantSubscription(ctx, t); err != nil {
			return fmt.Errorf("overlay: restore plan: %w", err)
		}
		if err := repo.DeactivateTemporaryUpgrade(ctx, u.ID, m.clock.Now()); err != nil {
			return fmt.Errorf("overlay: deactivate upgrade %d: %w", u.ID, err)
		}

		emit(eventType, models.JSONB{
			"upgrade_id":        u.ID,
			"temporary_plan_id": fromPlan,
			"restored_plan_id":  u.OriginalPlanID,
			"restored_status":   string(u.OriginalStatus),
		})
		restored = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if restored {
		log.Info().
			Int64("restaurant_id", u.RestaurantID).
			Int64("upgrade_id", upgradeID).
			Str("event_type", string(eventType)).
			Msg("Original plan restored")
	}
	return restored, nil
}

// DowngradeToFree moves the restaurant to the baseline plan with status
// active and ends any active upgrade.
func (m *Manager) DowngradeToFree(ctx context.Context, tenantID int64, reason DowngradeReason) error {
	var planID int64
	err := m.mutate(ctx, tenantID, func(ctx context.Context, repo Repository, emit emitFunc) error {
		t, err := repo.GetTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		planID, err = m.downgrade(ctx, repo, t, reason, emit)
		return err
	})
	if err != nil {
		return err
	}
	logDowngrade(tenantID, reason, planID)
	return nil
}

// ExpireTrial downgrades the restaurant if its trial has ended. It reports
// false when the restaurant no longer qualifies.
func (m *Manager) ExpireTrial(ctx context.Context, tenantID int64) (bool, error) {
	return m.expire(ctx, tenantID, ReasonTrialExpired, (*models.Tenant).TrialExpired)
}

// ExpireSubscription downgrades the restaurant if its subscription expiry
// has passed.
func (m *Manager) ExpireSubscription(ctx context.Context, tenantID int64) (bool, error) {
	return m.expire(ctx, tenantID, ReasonSubscriptionExpired, (*models.Tenant).SubscriptionLapsed)
}

func (m *Manager) expire(ctx context.Context, tenantID int64, reason DowngradeReason, due func(*models.Tenant, time.Time) bool) (bool, error) {
	var (
		applied bool
		planID  int64
	)
	err := m.mutate(ctx, tenantID, func(ctx context.Context, repo Repository, emit emitFunc) error {
		applied = false
		t, err := repo.GetTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		if !due(t, m.clock.Now()) {
			return nil
		}
		if planID, err = m.downgrade(ctx, repo, t, reason, emit); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		logDowngrade(tenantID, reason, planID)
	}
	return applied, nil
}

func (m *Manager) downgrade(ctx context.Context, repo Repository, t *models.Tenant, reason DowngradeReason, emit emitFunc) (int64, error) {
	base, err := repo.GetPlanBySlug(ctx, m.baselineSlug)
	if err != nil {
		return 0, fmt.Errorf("overlay: baseline plan %q: %w", m.baselineSlug, err)
	}

	data := models.JSONB{
		"reason":           string(reason),
		"previous_plan_id": t.SubscriptionPlanID,
		"previous_status":  string(t.SubscriptionStatus),
		"plan_id":          base.ID,
	}

	active, err := repo.GetActiveTemporaryUpgrade(ctx, t.ID)
	switch {
	case err == nil:
		if err := repo.DeactivateTemporaryUpgrade(ctx, active.ID, m.clock.Now()); err != nil {
			return 0, fmt.Errorf("overlay: deactivate upgrade %d: %w", active.ID, err)
		}
		data["deactivated_upgrade_id"] = active.ID
	case !apperrors.IsNotFound(err):
		return 0, fmt.Errorf("overlay: active upgrade: %w", err)
	}

	t.SubscriptionPlanID = base.ID
	t.SubscriptionStatus = models.StatusActive
	t.SubscriptionTrialEndsAt = nil
	t.SubscriptionExpiresAt = nil
	if err := repo.UpdateTenantSubscription(ctx, t); err != nil {
		return 0, fmt.Errorf("overlay: downgrade: %w", err)
	}
	emit(models.EventDowngraded, data)
	return base.ID, nil
}

func logDowngrade(tenantID int64, reason DowngradeReason, planID int64) {
	log.Info().
		Int64("restaurant_id", tenantID).
		Str("reason", string(reason)).
		Int64("plan_id", planID).
		Msg("Restaurant downgraded to baseline plan")
}

// SubscriptionUpdate is an operator edit of a restaurant's subscription.
// Nil fields are left unchanged.
type SubscriptionUpdate struct {
	PlanID      *int64                     `json:"subscription_plan_id,omitempty"`
	Status      *models.SubscriptionStatus `json:"subscription_status,omitempty"`
	ExpiresAt   *time.Time                 `json:"subscription_expires_at,omitempty"`
	ClearExpiry bool                       `json:"clear_expiry,omitempty"`
}

// UpdateSubscription applies an operator edit. Trials are only started by
// AssignTrial, so status trial is rejected. Nothing can be changed while a
// temporary upgrade is active: restoring the upgrade rewrites plan, status
// and expiry from its snapshot, so the upgrade has to be revoked first.
func (m *Manager) UpdateSubscription(ctx context.Context, tenantID int64, upd SubscriptionUpdate) (*models.Tenant, error) {
	if upd.PlanID == nil && upd.Status == nil && upd.ExpiresAt == nil && !upd.ClearExpiry {
		return nil, apperrors.Invalid("subscription", "no changes requested")
	}
	if upd.ExpiresAt != nil && upd.ClearExpiry {
		return nil, apperrors.Invalid("subscription_expires_at", "cannot be set and cleared together")
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return nil, apperrors.Invalid("subscription_status", fmt.Sprintf("unknown status %q", *upd.Status))
		}
		if *upd.Status == models.StatusTrial {
			return nil, apperrors.Invalid("subscription_status", "trial can only be started through the trial endpoint")
		}
	}

	var result *models.Tenant
	err := m.mutate(ctx, tenantID, func(ctx context.Context, repo Repository, emit emitFunc) error {
		t, err := repo.GetTenant(ctx, tenantID)
		if err != nil {
			return err
		}

		planChange := upd.PlanID != nil && *upd.PlanID != t.SubscriptionPlanID
		statusChange := upd.Status != nil && *upd.Status != t.SubscriptionStatus
		expiryChange := upd.ExpiresAt != nil || (upd.ClearExpiry && t.SubscriptionExpiresAt != nil)
		if planChange || statusChange || expiryChange {
			if err := requireNoActiveUpgrade(ctx, repo, tenantID); err != nil {
				return err
			}
		}

		changes := models.JSONB{}
		if planChange {
			if _, err := repo.GetPlanByID(ctx, *upd.PlanID); err != nil {
				return err
			}
			changes["previous_plan_id"] = t.SubscriptionPlanID
			changes["plan_id"] = *upd.PlanID
			t.SubscriptionPlanID = *upd.PlanID
		}
		if statusChange {
			changes["previous_status"] = string(t.SubscriptionStatus)
			changes["status"] = string(*upd.Status)
			t.SubscriptionStatus = *upd.Status
			t.SubscriptionTrialEndsAt = nil
		}
		switch {
		case upd.ExpiresAt != nil:
			at := upd.ExpiresAt.UTC()
			t.SubscriptionExpiresAt = &at
			changes["expires_at"] = at
		case upd.ClearExpiry && t.SubscriptionExpiresAt != nil:
			t.SubscriptionExpiresAt = nil
			changes["expires_at"] = nil
		}

		result = t
		if len(changes) == 0 {
			return nil
		}
		if err := repo.UpdateTenantSubscription(ctx, t); err != nil {
			return fmt.Errorf("overlay: update subscription: %w", err)
		}
		emit(models.EventSubscriptionUpdated, changes)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("restaurant_id", tenantID).
		Str("status", string(result.SubscriptionStatus)).
		Int64("plan_id", result.SubscriptionPlanID).
		Msg("Subscription updated")
	return result, nil
}

func requireNoActiveUpgrade(ctx context.Context, repo Repository, tenantID int64) error {
	active, err := repo.GetActiveTemporaryUpgrade(ctx, tenantID)
	if err == nil {
		return apperrors.Conflict("restaurant %d has active temporary upgrade %d", tenantID, active.ID)
	}
	if !apperrors.IsNotFound(err) {
		return fmt.Errorf("overlay: active upgrade: %w", err)
	}
	return nil
}
