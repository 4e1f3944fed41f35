package core

import (
	"sync"
	"time"
)

// RunMetrics tracks run history and the health verdict for the scrape
// pipeline. One instance lives for the whole process; writes come only
// from the scheduler's run-completion path, reads from status endpoints.
type RunMetrics struct {
	mu                  sync.Mutex
	interval            time.Duration
	lastRun             time.Time
	lastSuccess         time.Time
	consecutiveFailures int
	totalRuns           int64
	totalFetched        int64
	totalSaved          int64

	now func() time.Time
}

type MetricsSnapshot struct {
	LastRun             *time.Time `json:"last_run,omitempty"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	TotalRuns           int64      `json:"total_runs"`
	TotalFetched        int64      `json:"total_fetched"`
	TotalSaved          int64      `json:"total_saved"`
	Healthy             bool       `json:"healthy"`
}

func NewRunMetrics(scheduleInterval time.Duration) *RunMetrics {
	return &RunMetrics{
		interval: scheduleInterval,
		now:      time.Now,
	}
}

func (m *RunMetrics) RecordStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRun = m.now()
	m.totalRuns++
}

func (m *RunMetrics) RecordSuccess(fetched, saved int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSuccess = m.now()
	m.consecutiveFailures = 0
	m.totalFetched += int64(fetched)
	m.totalSaved += int64(saved)
}

func (m *RunMetrics) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consecutiveFailures++
}

// ResetFailures clears the failure streak, re-arming the breaker after an
// explicit external reset.
func (m *RunMetrics) ResetFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consecutiveFailures = 0
}

func (m *RunMetrics) ConsecutiveFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveFailures
}

// Healthy tolerates isolated failures while catching both "stuck" and
// "persistently erroring" states: healthy when a success landed within
// two schedule intervals, or fewer than three failures in a row.
func (m *RunMetrics) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthyLocked()
}

func (m *RunMetrics) healthyLocked() bool {
	if m.lastRun.IsZero() {
		return false
	}
	if !m.lastSuccess.IsZero() && m.now().Sub(m.lastSuccess) <= 2*m.interval {
		return true
	}
	return m.consecutiveFailures < 3
}

func (m *RunMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		ConsecutiveFailures: m.consecutiveFailures,
		TotalRuns:           m.totalRuns,
		TotalFetched:        m.totalFetched,
		TotalSaved:          m.totalSaved,
		Healthy:             m.healthyLocked(),
	}
	if !m.lastRun.IsZero() {
		t := m.lastRun
		snap.LastRun = &t
	}
	if !m.lastSuccess.IsZero() {
		t := m.lastSuccess
		snap.LastSuccess = &t
	}
	return snap
}
