package scraper

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/bekzodm/jobscout/internal/httpx"
)

// RemoteOK API returns a JSON array; the first element is metadata.
type remoteOKJob struct {
	Slug        string   `json:"slug"`
	ID          any      `json:"id"`
	Company     string   `json:"company"`
	Position    string   `json:"position"`
	URL         string   `json:"url"`
	Tags        []string `json:"tags"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	SalaryMin   int      `json:"salary_min"`
	SalaryMax   int      `json:"salary_max"`
}

type RemoteOKAdapter struct {
	exec    *httpx.Executor
	baseURL string
	enabled bool
	logger  *zap.Logger
}

func NewRemoteOKAdapter(exec *httpx.Executor, enabled bool, logger *zap.Logger) *RemoteOKAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteOKAdapter{
		exec:    exec,
		baseURL: "https://remoteok.com/api",
		enabled: enabled,
		logger:  logger.With(zap.String("source", "remoteok")),
	}
}

func (r *RemoteOKAdapter) Name() string  { return "remoteok" }
func (r *RemoteOKAdapter) Enabled() bool { return r.enabled }

func (r *RemoteOKAdapter) FetchJobs(ctx context.Context, limit int) ([]NormalizedJob, error) {
	var data []remoteOKJob
	if err := r.exec.GetJSON(ctx, r.baseURL, &data); err != nil {
		return nil, fmt.Errorf("remoteok fetch failed: %w", err)
	}

	jobs := make([]NormalizedJob, 0, limit)
	for _, j := range data {
		if len(jobs) >= limit {
			break
		}
		// Skip the metadata element and entries without an identity.
		if j.Slug == "" || j.URL == "" {
			continue
		}
		if j.Position == "" || j.Company == "" {
			r.logger.Debug("skipping malformed record", zap.String("slug", j.Slug))
			continue
		}

		job := NormalizedJob{
			Title:       j.Position,
			Company:     j.Company,
			Description: CleanDescription(j.Description),
			Location:    "Remote",
			JobType:     JobTypeFullTime,
			RemoteType:  RemoteTypeRemote,
			Experience:  InferExperience(j.Position),
			Skills:      ExtractSkills(j.Tags),
			ExternalURL: j.URL,
			SourceID:    remoteOKSourceID(j),
			SourceName:  "remoteok",
			PostedAt:    NormalizePostedAt(parseRemoteOKDate(j.Date)),
		}
		if j.SalaryMin > 0 {
			min := j.SalaryMin
			job.SalaryMin = &min
		}
		if j.SalaryMax > 0 && j.SalaryMax >= j.SalaryMin {
			max := j.SalaryMax
			job.SalaryMax = &max
		}
		jobs = append(jobs, job)
	}

	r.logger.Info("fetched jobs", zap.Int("count", len(jobs)))
	return jobs, nil
}

// remoteOKSourceID prefers the numeric id; the API has served it both as
// a number and a string over time.
func remoteOKSourceID(j remoteOKJob) string {
	switch id := j.ID.(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return strconv.FormatInt(int64(id), 10)
	}
	return j.Slug
}

func parseRemoteOKDate(val string) time.Time {
	if val == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t
	}
	// Older payloads used an epoch timestamp.
	if epoch, err := strconv.ParseInt(val, 10, 64); err == nil && epoch > 0 {
		return time.Unix(epoch, 0)
	}
	return time.Time{}
}
