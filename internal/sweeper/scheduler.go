package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Runner executes one sweep.
type Runner interface {
	Run(ctx context.Context) *Report
}

// Instrumentation provides hooks for monitoring scheduled sweeps
type Instrumentation struct {
	OnRun       func(report *Report)
	OnHeartbeat func(schedulerID string, stats Stats)
}

// Stats holds cumulative scheduler statistics
type Stats struct {
	Runs      int64     `json:"runs"`
	Processed int64     `json:"processed"`
	Failures  int64     `json:"failures"`
	Running   bool      `json:"running"`
	LastRunAt time.Time `json:"last_run_at"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	// Interval is the time between sweeps
	Interval time.Duration
	// RunOnStart triggers a sweep immediately instead of waiting one interval
	RunOnStart bool
	// RunTimeout bounds a single sweep
	RunTimeout time.Duration
	// ShutdownTimeout is the maximum time to wait for a running sweep during shutdown
	ShutdownTimeout time.Duration
	// HeartbeatInterval is the interval for reporting stats; zero disables it
	HeartbeatInterval time.Duration
}

// DefaultSchedulerConfig returns sensible default configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:          time.Hour,
		RunOnStart:        true,
		RunTimeout:        10 * time.Minute,
		ShutdownTimeout:   30 * time.Second,
		HeartbeatInterval: 5 * time.Minute,
	}
}

// Scheduler runs a sweep on a fixed interval until stopped.
type Scheduler struct {
	config          SchedulerConfig
	runner          Runner
	instrumentation Instrumentation

	schedulerID string
	wg          sync.WaitGroup
	stopCh      chan struct{}
	started     bool
	stopped     bool
	mu          sync.Mutex

	// cancelRun aborts the sweep in flight during shutdown
	cancelRun context.CancelFunc

	statsMu sync.RWMutex
	stats   Stats
}

// NewScheduler creates a Scheduler. Interval must be positive.
func NewScheduler(config SchedulerConfig, runner Runner) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("sweeper: runner cannot be nil")
	}
	if config.Interval <= 0 {
		return nil, errors.New("sweeper: interval must be positive")
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultSchedulerConfig().RunTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultSchedulerConfig().ShutdownTimeout
	}

	return &Scheduler{
		config:      config,
		runner:      runner,
		schedulerID: "sweeper-" + uuid.NewString()[:8],
		stopCh:      make(chan struct{}),
	}, nil
}

// SetInstrumentation sets the instrumentation hooks. Call before Start.
func (s *Scheduler) SetInstrumentation(inst Instrumentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instrumentation = inst
}

// Start begins the schedule loop. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	log.Info().
		Str("scheduler_id", s.schedulerID).
		Dur("interval", s.config.Interval).
		Msg("Starting expiration sweep scheduler")

	if s.config.HeartbeatInterval > 0 && s.instrumentation.OnHeartbeat != nil {
		s.wg.Add(1)
		go s.heartbeat(ctx)
	}

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop gracefully shuts down the scheduler, cancelling a sweep in flight if
// it does not finish within the shutdown timeout.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Str("scheduler_id", s.schedulerID).Msg("Sweep scheduler stopped")
		return nil
	case <-shutdownCtx.Done():
		s.abortRun()
		<-done
		return fmt.Errorf("sweeper: shutdown timeout exceeded, running sweep cancelled")
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	if s.config.RunOnStart {
		s.runOnce(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("scheduler_id", s.schedulerID).Msg("Sweep scheduler shutting down (context cancelled)")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()
	s.setRunning(true)

	report := s.runner.Run(runCtx)

	s.mu.Lock()
	s.cancelRun = nil
	onRun := s.instrumentation.OnRun
	s.mu.Unlock()

	s.statsMu.Lock()
	s.stats.Running = false
	s.stats.Runs++
	if report != nil {
		s.stats.Processed += int64(report.Processed())
		s.stats.Failures += int64(report.Failures())
		s.stats.LastRunAt = report.FinishedAt
	}
	s.statsMu.Unlock()

	if onRun != nil && report != nil {
		onRun(report)
	}
}

func (s *Scheduler) abortRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
}

func (s *Scheduler) setRunning(running bool) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Running = running
}

// heartbeat periodically reports stats
func (s *Scheduler) heartbeat(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.instrumentation.OnHeartbeat(s.schedulerID, s.Stats())
		}
	}
}

// Stats returns cumulative scheduler statistics
func (s *Scheduler) Stats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// LogHeartbeat is an OnHeartbeat hook that logs the stats.
func LogHeartbeat(schedulerID string, stats Stats) {
	log.Info().
		Str("scheduler_id", schedulerID).
		Int64("runs", stats.Runs).
		Int64("processed", stats.Processed).
		Int64("failures", stats.Failures).
		Bool("running", stats.Running).
		Time("last_run_at", stats.LastRunAt).
		Msg("Sweep scheduler heartbeat")
}
