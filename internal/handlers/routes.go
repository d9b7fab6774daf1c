package handlers

import (
	"github.com/go-chi/chi/v5"
)

// API holds the services behind the operator endpoints.
type API struct {
	Plans         PlanCatalog
	Subscriptions SubscriptionManager
	Access        AccessResolver
	Sweeper       SweepRunner
	Events        EventLister
	// Scheduler is nil when periodic sweeping is disabled.
	Scheduler SchedulerStats
}

// RegisterRoutes registers the operator API under /api.
func (a *API) RegisterRoutes(router chi.Router) {
	router.Route("/api", func(r chi.Router) {
		r.Get("/plans", ListPlans(a.Plans))
		r.Post("/plans", CreatePlan(a.Plans))
		r.Get("/plans/slug/{slug}", GetPlanBySlug(a.Plans))
		r.Get("/plans/{id}", GetPlan(a.Plans))
		r.Patch("/plans/{id}", UpdatePlan(a.Plans))
		r.Delete("/plans/{id}", DeletePlan(a.Plans))
		r.Get("/trial-config", TrialConfig(a.Plans))
		r.Put("/trial-config", TrialConfig(a.Plans))

		r.Route("/restaurants/{id}", func(r chi.Router) {
			r.Get("/subscription", GetSubscription(a.Subscriptions))
			r.Patch("/subscription", UpdateSubscription(a.Subscriptions))
			r.Post("/trial", AssignTrial(a.Subscriptions))
			r.Get("/temporary-upgrades", ListTemporaryUpgrades(a.Subscriptions))
			r.Post("/temporary-upgrades", CreateTemporaryUpgrade(a.Subscriptions))
			r.Post("/access-check", AccessCheck(a.Access))
			r.Post("/quota-check", QuotaCheck(a.Access))
			r.Get("/upgrade-suggestion", UpgradeSuggestion(a.Access))
		})

		r.Post("/temporary-upgrades/batch", BatchTemporaryUpgrade(a.Subscriptions))
		r.Post("/temporary-upgrades/{id}/revoke", RevokeTemporaryUpgrade(a.Subscriptions))

		r.Post("/sweeper/run", RunSweep(a.Sweeper))
		r.Get("/sweeper/status", SweeperStatus(a.Scheduler))
		r.Get("/events", ListEvents(a.Events))
	})
}
