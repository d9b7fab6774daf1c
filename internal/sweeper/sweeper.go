// Package sweeper finds elapsed trials, lapsed subscriptions and expired
// temporary upgrades and drives the matching lifecycle transition.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/resto-entitlements/internal/clock"
	"github.com/PortNumber53/resto-entitlements/internal/metrics"
)

// Scan names.
const (
	ScanTrials        = "trials"
	ScanSubscriptions = "subscriptions"
	ScanUpgrades      = "upgrades"
)

// Candidates lists ids whose time box closed before now.
type Candidates interface {
	ListExpiredTrialTenants(ctx context.Context, now time.Time) ([]int64, error)
	ListLapsedSubscriptionTenants(ctx context.Context, now time.Time) ([]int64, error)
	ListExpiredTemporaryUpgrades(ctx context.Context, now time.Time) ([]int64, error)
}

// Transitions applies the guarded lifecycle changes. Each returns false
// when the candidate no longer qualifies.
type Transitions interface {
	ExpireTrial(ctx context.Context, tenantID int64) (bool, error)
	ExpireSubscription(ctx context.Context, tenantID int64) (bool, error)
	RestoreOriginalPlan(ctx context.Context, upgradeID int64) (bool, error)
}

// ItemFailure is a candidate whose transition failed.
type ItemFailure struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

// ScanResult summarizes one scan. Error is set when the candidate listing
// itself failed.
type ScanResult struct {
	Candidates int           `json:"candidates"`
	Processed  int           `json:"processed"`
	Skipped    int           `json:"skipped"`
	Failed     []ItemFailure `json:"failed"`
	Error      string        `json:"error,omitempty"`
}

// Report is the outcome of one Run.
type Report struct {
	RunID         string     `json:"run_id"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at"`
	Trials        ScanResult `json:"trials"`
	Subscriptions ScanResult `json:"subscriptions"`
	Upgrades      ScanResult `json:"upgrades"`
}

// Processed is the number of transitions applied across all scans.
func (r *Report) Processed() int {
	return r.Trials.Processed + r.Subscriptions.Processed + r.Upgrades.Processed
}

// Failures is the number of failed candidates and listings across all scans.
func (r *Report) Failures() int {
	n := 0
	for _, s := range []ScanResult{r.Trials, r.Subscriptions, r.Upgrades} {
		n += len(s.Failed)
		if s.Error != "" {
			n++
		}
	}
	return n
}

// Sweeper runs the three expiry scans.
type Sweeper struct {
	candidates  Candidates
	transitions Transitions
	clock       clock.Clock
	metrics     *metrics.Metrics

	mu sync.Mutex
}

// New creates a Sweeper. A nil clock uses the system time; m may be nil.
func New(candidates Candidates, transitions Transitions, clk clock.Clock, m *metrics.Metrics) (*Sweeper, error) {
	if candidates == nil || transitions == nil {
		return nil, errors.New("sweeper: candidates and transitions are required")
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Sweeper{candidates: candidates, transitions: transitions, clock: clk, metrics: m}, nil
}

// Run executes the trial, subscription and upgrade scans in that order.
// Concurrent calls are serialized. A failing candidate or listing is
// recorded and the sweep moves on.
func (s *Sweeper) Run(ctx context.Context) *Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: s.clock.Now(),
	}
	logger := log.With().Str("run_id", report.RunID).Logger()
	logger.Info().Msg("Expiration sweep started")

	report.Trials = s.scan(ctx, logger, ScanTrials, s.candidates.ListExpiredTrialTenants, s.transitions.ExpireTrial)
	report.Subscriptions = s.scan(ctx, logger, ScanSubscriptions, s.candidates.ListLapsedSubscriptionTenants, s.transitions.ExpireSubscription)
	report.Upgrades = s.scan(ctx, logger, ScanUpgrades, s.candidates.ListExpiredTemporaryUpgrades, s.transitions.RestoreOriginalPlan)

	report.FinishedAt = s.clock.Now()
	s.metrics.SweepCompleted(time.Since(start))

	logger.Info().
		Int("processed", report.Processed()).
		Int("failures", report.Failures()).
		Dur("elapsed", time.Since(start)).
		Msg("Expiration sweep finished")
	return report
}

type listFunc func(ctx context.Context, now time.Time) ([]int64, error)
type applyFunc func(ctx context.Context, id int64) (bool, error)

func (s *Sweeper) scan(ctx context.Context, logger zerolog.Logger, name string, list listFunc, apply applyFunc) ScanResult {
	res := ScanResult{Failed: []ItemFailure{}}

	ids, err := list(ctx, s.clock.Now())
	if err != nil {
		logger.Error().Err(err).Str("scan", name).Msg("Listing sweep candidates failed")
		s.metrics.SweepItem(name, "list_failed")
		res.Error = err.Error()
		return res
	}
	res.Candidates = len(ids)

	for _, id := range ids {
		applied, err := apply(ctx, id)
		switch {
		case err != nil:
			logger.Warn().Err(err).Str("scan", name).Int64("id", id).Msg("Sweep transition failed")
			res.Failed = append(res.Failed, ItemFailure{ID: id, Error: err.Error()})
			s.metrics.SweepItem(name, "failed")
		case applied:
			res.Processed++
			s.metrics.SweepItem(name, "processed")
		default:
			res.Skipped++
			s.metrics.SweepItem(name, "skipped")
		}
	}
	return res
}
