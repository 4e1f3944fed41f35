package scraper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bekzodm/jobscout/internal/httpx"
)

type ycCompany struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type ycCompanyList struct {
	Companies []ycCompany `json:"companies"`
}

type ycJob struct {
	ID        int      `json:"id"`
	Title     string   `json:"title"`
	Desc      string   `json:"description"`
	Location  string   `json:"location"`
	SalaryMin int      `json:"salary_min"`
	SalaryMax int      `json:"salary_max"`
	JobType   string   `json:"job_type"`
	Skills    []string `json:"skills"`
	URL       string   `json:"url"`
	CreatedAt string   `json:"created_at"`
}

type ycJobList struct {
	Jobs []ycJob `json:"jobs"`
}

// YCombinatorAdapter walks the Work at a Startup API: the company list
// first, then each company's openings. A company whose jobs endpoint
// errors is skipped, not fatal to the batch.
type YCombinatorAdapter struct {
	exec    *httpx.Executor
	baseURL string
	enabled bool
	logger  *zap.Logger
}

func NewYCombinatorAdapter(exec *httpx.Executor, enabled bool, logger *zap.Logger) *YCombinatorAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YCombinatorAdapter{
		exec:    exec,
		baseURL: "https://www.ycombinator.com/api/worklist",
		enabled: enabled,
		logger:  logger.With(zap.String("source", "ycombinator")),
	}
}

func (y *YCombinatorAdapter) Name() string  { return "ycombinator" }
func (y *YCombinatorAdapter) Enabled() bool { return y.enabled }

func (y *YCombinatorAdapter) FetchJobs(ctx context.Context, limit int) ([]NormalizedJob, error) {
	var list ycCompanyList
	if err := y.exec.GetJSON(ctx, y.baseURL+"/companies", &list); err != nil {
		return nil, fmt.Errorf("ycombinator companies fetch failed: %w", err)
	}

	var jobs []NormalizedJob
	for _, company := range list.Companies {
		if len(jobs) >= limit {
			break
		}
		if company.Name == "" {
			continue
		}

		jobsURL := fmt.Sprintf("%s/jobs?company_id=%d", y.baseURL, company.ID)
		var companyJobs ycJobList
		if err := y.exec.GetJSON(ctx, jobsURL, &companyJobs); err != nil {
			if ctx.Err() != nil {
				return jobs, ctx.Err()
			}
			y.logger.Debug("no jobs for company", zap.String("company", company.Name), zap.Error(err))
			continue
		}

		for _, j := range companyJobs.Jobs {
			if len(jobs) >= limit {
				break
			}
			if j.Title == "" {
				continue
			}
			jobs = append(jobs, y.normalize(j, company))
		}
	}

	y.logger.Info("fetched jobs", zap.Int("count", len(jobs)))
	return jobs, nil
}

func (y *YCombinatorAdapter) normalize(j ycJob, company ycCompany) NormalizedJob {
	externalURL := j.URL
	if externalURL == "" {
		externalURL = company.URL
	}

	job := NormalizedJob{
		Title:       j.Title,
		Company:     company.Name,
		Description: CleanDescription(j.Desc),
		Location:    j.Location,
		JobType:     parseJobType(j.JobType),
		RemoteType:  RemoteTypeOnSite,
		Experience:  InferExperience(j.Title),
		Skills:      ExtractSkills(j.Skills),
		ExternalURL: externalURL,
		SourceID:    strconv.Itoa(j.ID),
		SourceName:  "ycombinator",
		PostedAt:    NormalizePostedAt(parseISODate(j.CreatedAt)),
	}
	if strings.Contains(strings.ToLower(j.Location), "remote") {
		job.RemoteType = RemoteTypeRemote
	}
	if j.SalaryMin > 0 {
		min := j.SalaryMin
		job.SalaryMin = &min
	}
	if j.SalaryMax > 0 && j.SalaryMax >= j.SalaryMin {
		max := j.SalaryMax
		job.SalaryMax = &max
	}
	return job
}

func parseJobType(s string) JobType {
	normalized := strings.ReplaceAll(strings.ToLower(s), "_", "-")
	switch JobType(normalized) {
	case JobTypeFullTime, JobTypePartTime, JobTypeContract:
		return JobType(normalized)
	case "":
		return JobTypeFullTime
	default:
		return JobTypeUnknown
	}
}

func parseISODate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return time.Time{}
}
