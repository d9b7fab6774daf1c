// Package memory is an in-process implementation of the plan, restaurant,
// temporary upgrade and event stores. It backs the test suites and the
// STORE_DRIVER=memory mode used for local runs without PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/PortNumber53/resto-entitlements/internal/apperrors"
	"github.com/PortNumber53/resto-entitlements/internal/models"
	"github.com/PortNumber53/resto-entitlements/internal/overlay"
)

// Store keeps every table in maps guarded by a single mutex. Tenant locks
// are separate per-restaurant mutexes so WithTenantLock serializes
// lifecycle mutations per restaurant only.
type Store struct {
	mu       sync.Mutex
	plans    map[int64]*models.Plan
	tenants  map[int64]*models.Tenant
	upgrades map[int64]*models.TemporaryUpgrade
	events   []models.SubscriptionEvent

	nextPlanID    int64
	nextTenantID  int64
	nextUpgradeID int64
	nextEventID   int64

	locksMu     sync.Mutex
	tenantLocks map[int64]*sync.Mutex

	// OnUpdateTenant, when set, runs before a restaurant update is applied;
	// a non-nil error aborts the update. Tests use it to inject failures.
	OnUpdateTenant func(t *models.Tenant) error
	// OnAppendEvent, when set, runs before an event is stored.
	OnAppendEvent func(e *models.SubscriptionEvent) error

	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		plans:       make(map[int64]*models.Plan),
		tenants:     make(map[int64]*models.Tenant),
		upgrades:    make(map[int64]*models.TemporaryUpgrade),
		tenantLocks: make(map[int64]*sync.Mutex),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the timestamp source used for created/updated columns.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Plans

func (s *Store) CreatePlan(ctx context.Context, p *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.plans {
		if existing.Slug == p.Slug {
			return apperrors.Conflict("plan slug %q already exists", p.Slug)
		}
	}
	s.nextPlanID++
	p.ID = s.nextPlanID
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	s.plans[p.ID] = p.Clone()
	return nil
}

func (s *Store) UpdatePlan(ctx context.Context, p *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.plans[p.ID]
	if !ok {
		return apperrors.NotFound("plan", p.ID)
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now()
	s.plans[p.ID] = p.Clone()
	return nil
}

func (s *Store) GetPlanByID(ctx context.Context, id int64) (*models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[id]
	if !ok {
		return nil, apperrors.NotFound("plan", id)
	}
	return p.Clone(), nil
}

func (s *Store) GetPlanBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.plans {
		if p.Slug == slug {
			return p.Clone(), nil
		}
	}
	return nil, apperrors.NotFound("plan", slug)
}

func (s *Store) ListPlans(ctx context.Context, filter models.PlanFilter) ([]models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if filter.OnlyActive && !p.IsActive {
			continue
		}
		if filter.OnlyVisible && !p.IsVisible {
			continue
		}
		out = append(out, *p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Restaurants

// CreateTenant inserts a restaurant row. Restaurants are owned by the
// back-office; this exists for seeding and tests.
func (s *Store) CreateTenant(ctx context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTenantID++
	t.ID = s.nextTenantID
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt
	s.tenants[t.ID] = t.Clone()
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id int64) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, apperrors.NotFound("restaurant", id)
	}
	return t.Clone(), nil
}

func (s *Store) UpdateTenantSubscription(ctx context.Context, t *models.Tenant) error {
	if s.OnUpdateTenant != nil {
		if err := s.OnUpdateTenant(t); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[t.ID]; !ok {
		return apperrors.NotFound("restaurant", t.ID)
	}
	t.UpdatedAt = s.now()
	s.tenants[t.ID] = t.Clone()
	return nil
}

func (s *Store) ListTenants(ctx context.Context, filter models.TenantFilter) ([]models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		if filter.Matches(t) {
			out = append(out, *t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListExpiredTrialTenants returns restaurants in trial whose trial ended
// before now.
func (s *Store) ListExpiredTrialTenants(ctx context.Context, now time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for _, t := range s.tenants {
		if t.TrialExpired(now) {
			ids = append(ids, t.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ListLapsedSubscriptionTenants returns active or trial restaurants whose
// subscription expiry is before now.
func (s *Store) ListLapsedSubscriptionTenants(ctx context.Context, now time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for _, t := range s.tenants {
		if t.SubscriptionLapsed(now) {
			ids = append(ids, t.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Temporary upgrades

func (s *Store) CreateTemporaryUpgrade(ctx context.Context, u *models.TemporaryUpgrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.IsActive {
		for _, existing := range s.upgrades {
			if existing.RestaurantID == u.RestaurantID && existing.IsActive {
				return apperrors.Conflict("restaurant %d already has an active temporary upgrade", u.RestaurantID)
			}
		}
	}
	s.nextUpgradeID++
	u.ID = s.nextUpgradeID
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.upgrades[u.ID] = u.Clone()
	return nil
}

func (s *Store) GetTemporaryUpgrade(ctx context.Context, id int64) (*models.TemporaryUpgrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.upgrades[id]
	if !ok {
		return nil, apperrors.NotFound("temporary upgrade", id)
	}
	return u.Clone(), nil
}

func (s *Store) GetActiveTemporaryUpgrade(ctx context.Context, restaurantID int64) (*models.TemporaryUpgrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.upgrades {
		if u.RestaurantID == restaurantID && u.IsActive {
			return u.Clone(), nil
		}
	}
	return nil, apperrors.NotFound("active temporary upgrade for restaurant", restaurantID)
}

func (s *Store) DeactivateTemporaryUpgrade(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.upgrades[id]
	if !ok {
		return apperrors.NotFound("temporary upgrade", id)
	}
	if !u.IsActive {
		return nil
	}
	u.IsActive = false
	deactivated := at
	u.DeactivatedAt = &deactivated
	return nil
}

func (s *Store) ListTemporaryUpgrades(ctx context.Context, restaurantID int64) ([]models.TemporaryUpgrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.TemporaryUpgrade
	for _, u := range s.upgrades {
		if u.RestaurantID == restaurantID {
			out = append(out, *u.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// ListExpiredTemporaryUpgrades returns ids of active upgrades whose window
// closed before now.
func (s *Store) ListExpiredTemporaryUpgrades(ctx context.Context, now time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for _, u := range s.upgrades {
		if u.Expired(now) {
			ids = append(ids, u.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Events

func (s *Store) AppendEvent(ctx context.Context, e *models.SubscriptionEvent) error {
	if s.OnAppendEvent != nil {
		if err := s.OnAppendEvent(e); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextEventID++
	e.ID = s.nextEventID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	stored := *e
	stored.EventData = cloneJSONB(e.EventData)
	s.events = append(s.events, stored)
	return nil
}

// ListEvents returns events newest first.
func (s *Store) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.SubscriptionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.SubscriptionEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if filter.RestaurantID != nil && e.RestaurantID != *filter.RestaurantID {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		e.EventData = cloneJSONB(e.EventData)
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Locking

// WithTenantLock serializes fn against other lifecycle mutations of the
// same restaurant. On error the restaurant row and its upgrades are put
// back to their state before fn ran.
func (s *Store) WithTenantLock(ctx context.Context, tenantID int64, fn func(ctx context.Context, repo overlay.Repository) error) error {
	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot, err := s.snapshotTenant(tenantID)
	if err != nil {
		return err
	}

	if err := fn(ctx, s); err != nil {
		s.restoreTenant(snapshot)
		return err
	}
	return nil
}

func (s *Store) tenantLock(id int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.tenantLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.tenantLocks[id] = lock
	}
	return lock
}

type tenantSnapshot struct {
	tenant   *models.Tenant
	upgrades map[int64]*models.TemporaryUpgrade
}

func (s *Store) snapshotTenant(id int64) (tenantSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok {
		return tenantSnapshot{}, apperrors.NotFound("restaurant", id)
	}
	snap := tenantSnapshot{tenant: t.Clone(), upgrades: make(map[int64]*models.TemporaryUpgrade)}
	for uid, u := range s.upgrades {
		if u.RestaurantID == id {
			snap.upgrades[uid] = u.Clone()
		}
	}
	return snap, nil
}

func (s *Store) restoreTenant(snap tenantSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := snap.tenant.ID
	s.tenants[id] = snap.tenant
	for uid, u := range s.upgrades {
		if u.RestaurantID != id {
			continue
		}
		if prev, ok := snap.upgrades[uid]; ok {
			s.upgrades[uid] = prev
		} else {
			delete(s.upgrades, uid)
		}
	}
}

func cloneJSONB(in models.JSONB) models.JSONB {
	if in == nil {
		return nil
	}
	out := make(models.JSONB, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ overlay.Store = (*Store)(nil)
