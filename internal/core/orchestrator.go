package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bekzodm/jobscout/internal/scraper"
)

// ErrAllSourcesFailed marks a run where no adapter returned any jobs and
// at least one reported a fetch error. "Nothing new available" is not a
// failure; "everything is broken" is.
var ErrAllSourcesFailed = errors.New("all sources failed")

// Gateway persists a deduplicated batch. Identity resolution against
// durable storage is entirely the gateway's responsibility and is
// stricter than the in-memory deduplicator.
type Gateway interface {
	UpsertBatch(ctx context.Context, jobs []scraper.NormalizedJob) (int, error)
}

type SourceOutcome struct {
	Fetched int    `json:"fetched"`
	Error   string `json:"error,omitempty"`
}

type RunResult struct {
	RunID        string                   `json:"run_id"`
	PerSource    map[string]SourceOutcome `json:"per_source"`
	TotalFetched int                      `json:"total_fetched"`
	TotalSaved   int                      `json:"total_saved"`
	Duplicates   int                      `json:"duplicates"`
	Duration     time.Duration            `json:"duration"`
}

// Orchestrator fans one run out to all enabled adapters concurrently,
// aggregates their output, deduplicates it, and delegates persistence.
type Orchestrator struct {
	adapters   []scraper.SourceAdapter
	dedup      *Deduplicator
	gateway    Gateway
	runTimeout time.Duration
	logger     *zap.Logger
}

func NewOrchestrator(adapters []scraper.SourceAdapter, gateway Gateway, runTimeout time.Duration, logger *zap.Logger) *Orchestrator {
	if runTimeout <= 0 {
		runTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		adapters:   adapters,
		dedup:      NewDeduplicator(),
		gateway:    gateway,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

// Adapters returns the adapter enablement view for status reporting.
func (o *Orchestrator) Adapters() map[string]bool {
	out := make(map[string]bool, len(o.adapters))
	for _, a := range o.adapters {
		out[a.Name()] = a.Enabled()
	}
	return out
}

type sourceResult struct {
	name string
	jobs []scraper.NormalizedJob
	err  error
}

// RunOnce performs one scrape run. One adapter's failure never cancels
// the others; all tasks are awaited up to the run deadline, after which
// stragglers are abandoned and their sources marked failed.
func (o *Orchestrator) RunOnce(ctx context.Context, targetTotal int) (RunResult, error) {
	start := time.Now()
	result := RunResult{
		RunID:     uuid.NewString(),
		PerSource: make(map[string]SourceOutcome),
	}
	log := o.logger.With(zap.String("run_id", result.RunID))

	var enabled []scraper.SourceAdapter
	for _, a := range o.adapters {
		if a.Enabled() {
			enabled = append(enabled, a)
		}
	}
	if len(enabled) == 0 {
		log.Warn("no job sources are enabled")
		result.Duration = time.Since(start)
		return result, nil
	}

	perSourceTarget := targetTotal / len(enabled)
	if perSourceTarget < 1 {
		perSourceTarget = 1
	}
	log.Info("starting scrape run",
		zap.Int("sources", len(enabled)),
		zap.Int("per_source_target", perSourceTarget))

	fanCtx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	results := make(chan sourceResult, len(enabled))
	var wg sync.WaitGroup
	for _, adapter := range enabled {
		wg.Add(1)
		go func(a scraper.SourceAdapter) {
			defer wg.Done()
			jobs, err := a.FetchJobs(fanCtx, perSourceTarget)
			results <- sourceResult{name: a.Name(), jobs: jobs, err: err}
		}(adapter)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Batch assembly happens in completion order; first-seen wins on
	// fingerprint ties, so cross-source ordering is nondeterministic.
	var batch []scraper.NormalizedJob
	errCount := 0
	received := 0

	consume := func(res sourceResult) {
		received++
		if res.err != nil {
			errCount++
			result.PerSource[res.name] = SourceOutcome{Error: res.err.Error()}
			log.Warn("source failed", zap.String("source", res.name), zap.Error(res.err))
			return
		}
		result.PerSource[res.name] = SourceOutcome{Fetched: len(res.jobs)}
		result.TotalFetched += len(res.jobs)
		for _, job := range res.jobs {
			if o.dedup.Seen(job.Fingerprint()) {
				result.Duplicates++
				continue
			}
			batch = append(batch, job)
		}
	}

collect:
	for received < len(enabled) {
		select {
		case res, ok := <-results:
			if !ok {
				break collect
			}
			consume(res)
		case <-fanCtx.Done():
			// A result delivered in the same instant the deadline fired
			// may already sit in the buffer; take everything available
			// before declaring stragglers.
		drain:
			for received < len(enabled) {
				select {
				case res, ok := <-results:
					if !ok {
						break drain
					}
					consume(res)
				default:
					break drain
				}
			}
			for _, a := range enabled {
				if _, ok := result.PerSource[a.Name()]; !ok {
					errCount++
					result.PerSource[a.Name()] = SourceOutcome{Error: "abandoned: run deadline exceeded"}
				}
			}
			log.Warn("run deadline exceeded, abandoning stragglers")
			break collect
		}
	}

	if result.TotalFetched == 0 && errCount > 0 {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("%w: %d of %d sources errored", ErrAllSourcesFailed, errCount, len(enabled))
	}

	if len(batch) > 0 {
		saved, err := o.gateway.UpsertBatch(ctx, batch)
		if err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("persist batch: %w", err)
		}
		result.TotalSaved = saved
	}

	result.Duration = time.Since(start)
	log.Info("scrape run completed",
		zap.Int("fetched", result.TotalFetched),
		zap.Int("saved", result.TotalSaved),
		zap.Int("duplicates", result.Duplicates),
		zap.Duration("duration", result.Duration))
	return result, nil
}
