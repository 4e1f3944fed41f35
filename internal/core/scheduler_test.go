package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bekzodm/jobscout/internal/notify"
	"github.com/bekzodm/jobscout/internal/scraper"
)

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	severity []notify.Severity
}

func (n *fakeNotifier) Notify(_ context.Context, severity notify.Severity, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	n.severity = append(n.severity, severity)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func (n *fakeNotifier) countContaining(substr string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.messages {
		if strings.Contains(m, substr) {
			c++
		}
	}
	return c
}

type fakeHousekeeper struct {
	calls int32
	err   error
}

func (h *fakeHousekeeper) DeleteOldJobs(_ context.Context, _ time.Duration) (int64, error) {
	atomic.AddInt32(&h.calls, 1)
	if h.err != nil {
		return 0, h.err
	}
	return 3, nil
}

func testScheduler(t *testing.T, adapters []scraper.SourceAdapter, notifier notify.Notifier) (*Scheduler, *RunMetrics, *fakeGateway) {
	t.Helper()
	gw := &fakeGateway{}
	orch := NewOrchestrator(adapters, gw, time.Minute, nil)
	metrics := NewRunMetrics(time.Hour)
	cfg := SchedulerConfig{
		Enabled:        true,
		Interval:       time.Hour,
		TargetPerRun:   40,
		StartupDelay:   time.Millisecond,
		HousekeepEvery: time.Hour,
		Retention:      60 * 24 * time.Hour,
	}
	return NewScheduler(cfg, orch, metrics, &fakeHousekeeper{}, notifier, nil), metrics, gw
}

func TestSchedulerRunExclusivity(t *testing.T) {
	slow := &fakeAdapter{name: "slow", enabled: true, jobs: uniqueJobs("slow", 5), delay: 300 * time.Millisecond}
	s, metrics, _ := testScheduler(t, []scraper.SourceAdapter{slow}, &fakeNotifier{})

	require.NoError(t, s.TriggerManual(40))
	require.Eventually(t, func() bool { return s.inProgress.Load() }, time.Second, 5*time.Millisecond)

	err := s.TriggerManual(40)
	require.ErrorIs(t, err, ErrRunInProgress, "overlapping trigger is dropped, not queued")

	require.Eventually(t, func() bool {
		return metrics.Snapshot().TotalRuns == 1 && !s.inProgress.Load()
	}, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&slow.calls), "exactly one run happened")
}

func TestSchedulerCircuitBreaker(t *testing.T) {
	failing := &fakeAdapter{name: "bad", enabled: true, err: errors.New("down")}
	notifier := &fakeNotifier{}
	s, metrics, _ := testScheduler(t, []scraper.SourceAdapter{failing}, notifier)

	ctx := context.Background()
	for i := 0; i < breakerThreshold; i++ {
		s.execute(ctx, 10)
	}
	require.Equal(t, breakerThreshold, metrics.ConsecutiveFailures())
	assert.Equal(t, "suspended", s.Status().State)

	// The next scheduled triggers perform no fetch.
	before := atomic.LoadInt32(&failing.calls)
	s.runScheduled(ctx)
	s.runScheduled(ctx)
	assert.Equal(t, before, atomic.LoadInt32(&failing.calls))
}

func TestSchedulerAlertsOncePerSuspensionEpisode(t *testing.T) {
	failing := &fakeAdapter{name: "bad", enabled: true, err: errors.New("down")}
	notifier := &fakeNotifier{}
	s, _, _ := testScheduler(t, []scraper.SourceAdapter{failing}, notifier)

	ctx := context.Background()
	for i := 0; i < breakerThreshold; i++ {
		s.execute(ctx, 10)
	}
	tripAlerts := notifier.count()
	require.GreaterOrEqual(t, tripAlerts, 1)

	// Repeated skipped intervals do not re-alert.
	s.runScheduled(ctx)
	s.runScheduled(ctx)
	s.runScheduled(ctx)
	assert.Equal(t, tripAlerts, notifier.count())
}

func TestSchedulerManualRunResetsBreaker(t *testing.T) {
	adapter := &fakeAdapter{name: "flaky", enabled: true, err: errors.New("down")}
	s, metrics, _ := testScheduler(t, []scraper.SourceAdapter{adapter}, &fakeNotifier{})

	ctx := context.Background()
	for i := 0; i < breakerThreshold; i++ {
		s.execute(ctx, 10)
	}
	require.Equal(t, "suspended", s.Status().State)

	// Source recovers; a manual trigger is allowed through the open
	// breaker and its success re-arms the schedule.
	adapter.err = nil
	adapter.jobs = uniqueJobs("flaky", 5)
	require.NoError(t, s.TriggerManual(10))
	require.Eventually(t, func() bool {
		return metrics.ConsecutiveFailures() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "idle", s.Status().State)
}

func TestSchedulerManualTriggerRejections(t *testing.T) {
	adapter := &fakeAdapter{name: "a", enabled: true, jobs: uniqueJobs("a", 3)}

	s, _, _ := testScheduler(t, []scraper.SourceAdapter{adapter}, &fakeNotifier{})
	s.cfg.Enabled = false
	require.ErrorIs(t, s.TriggerManual(10), ErrScrapingOff)

	s2, _, _ := testScheduler(t, []scraper.SourceAdapter{adapter}, &fakeNotifier{})
	s2.Suspend()
	require.ErrorIs(t, s2.TriggerManual(10), ErrSchedulerPaused)
	assert.Equal(t, "suspended", s2.Status().State)

	s2.Resume()
	require.NoError(t, s2.TriggerManual(10))
}

func TestSchedulerNotifiesOnSavedJobs(t *testing.T) {
	adapter := &fakeAdapter{name: "a", enabled: true, jobs: uniqueJobs("a", 5)}
	notifier := &fakeNotifier{}
	s, _, _ := testScheduler(t, []scraper.SourceAdapter{adapter}, notifier)

	s.execute(context.Background(), 10)

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, notify.SeverityInfo, notifier.severity[0])
	assert.Contains(t, notifier.messages[0], "5 new jobs")
}

func TestSchedulerRunFailureRecorded(t *testing.T) {
	adapter := &fakeAdapter{name: "bad", enabled: true, err: errors.New("down")}
	s, metrics, _ := testScheduler(t, []scraper.SourceAdapter{adapter}, &fakeNotifier{})

	s.execute(context.Background(), 10)

	snap := metrics.Snapshot()
	assert.EqualValues(t, 1, snap.TotalRuns)
	assert.Equal(t, 1, snap.ConsecutiveFailures)
}

func TestSchedulerStatusFields(t *testing.T) {
	adapter := &fakeAdapter{name: "a", enabled: true}
	disabled := &fakeAdapter{name: "b", enabled: false}
	s, _, _ := testScheduler(t, []scraper.SourceAdapter{adapter, disabled}, &fakeNotifier{})

	st := s.Status()
	assert.Equal(t, "idle", st.State)
	assert.True(t, st.Enabled)
	assert.Equal(t, map[string]bool{"a": true, "b": false}, st.Sources)
	assert.Nil(t, st.NextRunAt, "no next run before Start")
}

func TestSchedulerStartAndGracefulStop(t *testing.T) {
	adapter := &fakeAdapter{name: "a", enabled: true, jobs: uniqueJobs("a", 2)}
	s, metrics, _ := testScheduler(t, []scraper.SourceAdapter{adapter}, &fakeNotifier{})

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return metrics.Snapshot().TotalRuns >= 1
	}, 2*time.Second, 10*time.Millisecond, "immediate startup trigger runs")

	st := s.Status()
	require.NotNil(t, st.NextRunAt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestSchedulerPeriodicHealthCheckRealerts(t *testing.T) {
	failing := &fakeAdapter{name: "bad", enabled: true, err: errors.New("down")}
	notifier := &fakeNotifier{}
	gw := &fakeGateway{}
	orch := NewOrchestrator([]scraper.SourceAdapter{failing}, gw, time.Minute, nil)
	metrics := NewRunMetrics(time.Hour)
	cfg := SchedulerConfig{
		Enabled:          true,
		Interval:         time.Hour,
		TargetPerRun:     10,
		StartupDelay:     time.Hour, // keep the scrape loop out of the way
		HousekeepEvery:   time.Hour,
		Retention:        24 * time.Hour,
		HealthCheckEvery: 20 * time.Millisecond,
	}
	s := NewScheduler(cfg, orch, metrics, &fakeHousekeeper{}, notifier, nil)

	// Pipeline already unhealthy before the loops start.
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.execute(ctx, 10)
	}
	require.False(t, metrics.Healthy())

	s.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(stopCtx)
	}()

	// The standalone probe keeps alerting each check while unhealthy,
	// even though no further runs complete.
	require.Eventually(t, func() bool {
		return notifier.countContaining("system unhealthy") >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerRejectsTriggerAfterStop(t *testing.T) {
	adapter := &fakeAdapter{name: "a", enabled: true, jobs: uniqueJobs("a", 2)}
	s, _, _ := testScheduler(t, []scraper.SourceAdapter{adapter}, &fakeNotifier{})

	s.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	require.ErrorIs(t, s.TriggerManual(10), ErrSchedulerStopped)
}

func TestSchedulerHousekeepingIsolated(t *testing.T) {
	adapter := &fakeAdapter{name: "a", enabled: true, jobs: uniqueJobs("a", 2)}
	gw := &fakeGateway{}
	orch := NewOrchestrator([]scraper.SourceAdapter{adapter}, gw, time.Minute, nil)
	metrics := NewRunMetrics(time.Hour)
	hk := &fakeHousekeeper{err: errors.New("db busy")}
	cfg := SchedulerConfig{
		Enabled:        true,
		Interval:       time.Hour,
		TargetPerRun:   10,
		StartupDelay:   time.Millisecond,
		HousekeepEvery: time.Hour,
		Retention:      24 * time.Hour,
	}
	s := NewScheduler(cfg, orch, metrics, hk, &fakeNotifier{}, nil)

	s.Start(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&hk.calls) >= 1 && metrics.Snapshot().TotalRuns >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// Cleanup failure never marks the scrape pipeline failed.
	assert.Equal(t, 0, metrics.ConsecutiveFailures())
}
