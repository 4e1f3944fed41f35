package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/bekzodm/jobscout/internal/httpx"
)

// WWRAdapter scrapes the We Work Remotely programming listing page.
// The board has no API, so this is the one HTML adapter. It fetches
// through colly rather than the Executor but still draws from the
// shared token bucket, so its egress counts against the global rate.
type WWRAdapter struct {
	bucket    *httpx.TokenBucket
	baseURL   string
	userAgent string
	timeout   time.Duration
	enabled   bool
	logger    *zap.Logger
}

func NewWWRAdapter(bucket *httpx.TokenBucket, enabled bool, logger *zap.Logger) *WWRAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WWRAdapter{
		bucket:    bucket,
		baseURL:   "https://weworkremotely.com/categories/remote-programming-jobs",
		userAgent: defaultBotUserAgent,
		timeout:   15 * time.Second,
		enabled:   enabled,
		logger:    logger.With(zap.String("source", "weworkremotely")),
	}
}

const defaultBotUserAgent = "jobscout-bot/1.0"

func (w *WWRAdapter) Name() string  { return "weworkremotely" }
func (w *WWRAdapter) Enabled() bool { return w.enabled }

func (w *WWRAdapter) FetchJobs(ctx context.Context, limit int) ([]NormalizedJob, error) {
	if w.bucket != nil {
		if err := w.bucket.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("wwr fetch failed: %w", err)
		}
	}

	c := colly.NewCollector(colly.UserAgent(w.userAgent))
	c.SetRequestTimeout(w.timeout)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	var jobs []NormalizedJob
	c.OnHTML("section.jobs article ul li a", func(e *colly.HTMLElement) {
		if len(jobs) >= limit {
			return
		}
		href := e.Attr("href")
		title := strings.TrimSpace(e.ChildText("span.title"))
		company := strings.TrimSpace(e.ChildText("span.company"))
		if href == "" || title == "" || company == "" {
			return
		}

		jobURL := strings.TrimPrefix(href, "//")
		if !strings.HasPrefix(jobURL, "http") {
			jobURL = "https://weworkremotely.com" + href
		}

		jobs = append(jobs, NormalizedJob{
			Title:       title,
			Company:     company,
			Description: title + " at " + company,
			Location:    "Remote",
			JobType:     JobTypeFullTime,
			RemoteType:  RemoteTypeRemote,
			Experience:  InferExperience(title),
			ExternalURL: jobURL,
			SourceID:    wwrSlug(href),
			SourceName:  "weworkremotely",
			PostedAt:    time.Now(),
		})
	})

	var fetchErr error
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(w.baseURL); err != nil {
		return nil, fmt.Errorf("wwr fetch failed: %w", err)
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("wwr fetch failed: %w", fetchErr)
	}
	if err := ctx.Err(); err != nil {
		return jobs, err
	}

	w.logger.Info("fetched jobs", zap.Int("count", len(jobs)))
	return jobs, nil
}

// wwrSlug extracts the listing slug used as the per-source job identity.
func wwrSlug(href string) string {
	trimmed := strings.Trim(href, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return trimmed
}
