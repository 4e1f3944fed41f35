package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bekzodm/jobscout/internal/notify"
)

// breakerThreshold is the consecutive-failure count that suspends the
// scheduled scrape path until a reset or a successful manual run.
const breakerThreshold = 5

var (
	ErrRunInProgress    = errors.New("a scrape run is already in progress")
	ErrScrapingOff      = errors.New("scraping is disabled in configuration")
	ErrSchedulerPaused  = errors.New("scheduler is suspended")
	ErrSchedulerStopped = errors.New("scheduler has been stopped")
)

type SchedulerConfig struct {
	Enabled      bool
	Interval     time.Duration
	TargetPerRun int
	// StartupDelay is the gap before the immediate first run.
	StartupDelay   time.Duration
	HousekeepEvery time.Duration
	Retention      time.Duration
	// HealthCheckEvery is the cadence of the standalone health probe,
	// which re-alerts while the pipeline stays unhealthy.
	HealthCheckEvery time.Duration
}

// Housekeeper is the slice of the persistence gateway the cleanup task
// needs.
type Housekeeper interface {
	DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Scheduler drives the single logical timeline of scrape triggers:
// interval runs with coalescing, the circuit breaker, health alerting,
// and an independent retention housekeeping cadence.
type Scheduler struct {
	cfg      SchedulerConfig
	orch     *Orchestrator
	metrics  *RunMetrics
	store    Housekeeper
	notifier notify.Notifier
	logger   *zap.Logger

	inProgress atomic.Bool

	mu        sync.Mutex
	started   bool
	stopped   bool // set by Stop; no further triggers are accepted
	suspended bool // administrative suspension, distinct from the breaker
	alerted   bool // one alert per suspension episode
	nextRun   time.Time

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(cfg SchedulerConfig, orch *Orchestrator, metrics *RunMetrics, store Housekeeper, notifier notify.Notifier, logger *zap.Logger) *Scheduler {
	if cfg.StartupDelay <= 0 {
		cfg.StartupDelay = 30 * time.Second
	}
	if cfg.HousekeepEvery <= 0 {
		cfg.HousekeepEvery = 24 * time.Hour
	}
	if cfg.HealthCheckEvery <= 0 {
		cfg.HealthCheckEvery = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Scheduler{
		cfg:      cfg,
		orch:     orch,
		metrics:  metrics,
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// Start launches the scrape, housekeeping, and health-check loops. It is
// not blocking; use Stop for graceful shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if !s.cfg.Enabled {
		s.logger.Info("scraping is disabled, scheduler idle")
		return
	}

	s.wg.Add(3)
	go s.scrapeLoop(s.runCtx)
	go s.housekeepLoop(s.runCtx)
	go s.healthLoop(s.runCtx)

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("target_per_run", s.cfg.TargetPerRun))
}

func (s *Scheduler) scrapeLoop(ctx context.Context) {
	defer s.wg.Done()

	// Immediate trigger shortly after startup.
	s.setNextRun(time.Now().Add(s.cfg.StartupDelay))
	if err := sleepCtx(ctx, s.cfg.StartupDelay); err != nil {
		return
	}
	s.runScheduled(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.setNextRun(time.Now().Add(s.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.setNextRun(time.Now().Add(s.cfg.Interval))
			s.runScheduled(ctx)
		}
	}
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	s.mu.Lock()
	suspended := s.suspended
	s.mu.Unlock()
	if suspended {
		s.logger.Info("skipping run: administratively suspended")
		return
	}

	if s.metrics.ConsecutiveFailures() >= breakerThreshold {
		s.alertOnce(ctx, fmt.Sprintf(
			"scraping suspended after %d consecutive failures", s.metrics.ConsecutiveFailures()))
		s.logger.Warn("skipping run: circuit breaker open",
			zap.Int("consecutive_failures", s.metrics.ConsecutiveFailures()))
		return
	}

	s.execute(ctx, s.cfg.TargetPerRun)
}

// execute performs one run under the exclusivity flag. A trigger firing
// while a run is active is dropped, not queued.
func (s *Scheduler) execute(ctx context.Context, target int) {
	if !s.inProgress.CompareAndSwap(false, true) {
		s.logger.Info("run already in progress, coalescing trigger")
		return
	}
	defer s.inProgress.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordFailure()
			s.logger.Error("scrape run panicked", zap.Any("panic", r))
		}
	}()

	wasHealthy := s.metrics.Healthy()
	s.metrics.RecordStart()

	result, err := s.orch.RunOnce(ctx, target)
	if err != nil {
		s.metrics.RecordFailure()
		s.logger.Error("scrape run failed",
			zap.String("run_id", result.RunID),
			zap.Error(err))
		if s.metrics.ConsecutiveFailures() >= breakerThreshold {
			s.alertOnce(ctx, fmt.Sprintf(
				"scraping suspended after %d consecutive failures", s.metrics.ConsecutiveFailures()))
		}
	} else {
		s.metrics.RecordSuccess(result.TotalFetched, result.TotalSaved)
		s.mu.Lock()
		s.alerted = false // suspension episode, if any, is over
		s.mu.Unlock()
		if result.TotalSaved > 0 {
			s.notify(ctx, notify.SeverityInfo,
				fmt.Sprintf("scrape run saved %d new jobs (%d fetched)", result.TotalSaved, result.TotalFetched))
		}
	}

	if wasHealthy && !s.metrics.Healthy() {
		s.notify(ctx, notify.SeverityError, "scrape pipeline became unhealthy")
	}
}

// TriggerManual starts a run in the background. It is rejected
// synchronously with a reason when scraping is disabled, the scheduler
// has been stopped or administratively suspended, or a run is already
// active. A manual run is allowed while the breaker is open; its success
// re-arms the schedule.
func (s *Scheduler) TriggerManual(target int) error {
	if !s.cfg.Enabled {
		return ErrScrapingOff
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}
	if s.suspended {
		s.mu.Unlock()
		return ErrSchedulerPaused
	}
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if s.inProgress.Load() {
		return ErrRunInProgress
	}
	if target <= 0 {
		target = s.cfg.TargetPerRun
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(ctx, target)
	}()
	return nil
}

// Suspend halts scheduled and manual runs until Resume.
func (s *Scheduler) Suspend() {
	s.mu.Lock()
	s.suspended = true
	s.mu.Unlock()
	s.logger.Info("scheduler suspended")
}

// Resume lifts an administrative suspension and resets the breaker.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.suspended = false
	s.alerted = false
	s.mu.Unlock()
	s.metrics.ResetFailures()
	s.logger.Info("scheduler resumed")
}

func (s *Scheduler) housekeepLoop(ctx context.Context) {
	defer s.wg.Done()

	s.cleanup(ctx)

	ticker := time.NewTicker(s.cfg.HousekeepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(ctx)
		}
	}
}

// healthLoop probes pipeline health on its own cadence, independent of
// run completion. A wedged scrape loop or an open breaker stops runs
// from completing, so run-completion alerting alone would go silent;
// this loop keeps re-alerting every check while the pipeline stays
// unhealthy.
func (s *Scheduler) healthLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.HealthCheckEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkHealth(ctx)
		}
	}
}

func (s *Scheduler) checkHealth(ctx context.Context) {
	snap := s.metrics.Snapshot()
	if snap.LastRun == nil {
		return // nothing to judge before the first run
	}
	if snap.Healthy {
		s.logger.Debug("health check passed",
			zap.Int("consecutive_failures", snap.ConsecutiveFailures))
		return
	}
	s.notify(ctx, notify.SeverityError, fmt.Sprintf(
		"job scraping system unhealthy: %d consecutive failures", snap.ConsecutiveFailures))
}

// cleanup removes records past the retention window. Its failures are
// isolated from scrape scheduling.
func (s *Scheduler) cleanup(ctx context.Context) {
	deleted, err := s.store.DeleteOldJobs(ctx, s.cfg.Retention)
	if err != nil {
		s.logger.Error("retention cleanup failed", zap.Error(err))
		s.notify(ctx, notify.SeverityError, fmt.Sprintf("job cleanup failed: %v", err))
		return
	}
	if deleted > 0 {
		s.logger.Info("retention cleanup removed expired jobs", zap.Int64("deleted", deleted))
	}
}

type Status struct {
	State     string          `json:"state"` // idle | running | suspended
	Enabled   bool            `json:"enabled"`
	NextRunAt *time.Time      `json:"next_run_at,omitempty"`
	Metrics   MetricsSnapshot `json:"metrics"`
	Sources   map[string]bool `json:"sources"`
}

// Status returns a read-only observability view. It always answers, even
// mid-failure.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	suspended := s.suspended
	nextRun := s.nextRun
	started := s.started
	s.mu.Unlock()

	state := "idle"
	switch {
	case suspended || s.metrics.ConsecutiveFailures() >= breakerThreshold:
		state = "suspended"
	case s.inProgress.Load():
		state = "running"
	}

	st := Status{
		State:   state,
		Enabled: s.cfg.Enabled,
		Metrics: s.metrics.Snapshot(),
		Sources: s.orch.Adapters(),
	}
	if started && s.cfg.Enabled && !nextRun.IsZero() {
		t := nextRun
		st.NextRunAt = &t
	}
	return st
}

// Stop performs a graceful shutdown: no new triggers, the in-flight run
// is cancelled, and loops are awaited up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRun = t
	s.mu.Unlock()
}

// alertOnce sends at most one alert per suspension episode.
func (s *Scheduler) alertOnce(ctx context.Context, message string) {
	s.mu.Lock()
	if s.alerted {
		s.mu.Unlock()
		return
	}
	s.alerted = true
	s.mu.Unlock()
	s.notify(ctx, notify.SeverityError, message)
}

func (s *Scheduler) notify(ctx context.Context, severity notify.Severity, message string) {
	if err := s.notifier.Notify(ctx, severity, message); err != nil {
		s.logger.Warn("notification delivery failed", zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
