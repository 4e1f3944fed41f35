package scraper

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

type JobType string

const (
	JobTypeFullTime JobType = "full-time"
	JobTypePartTime JobType = "part-time"
	JobTypeContract JobType = "contract"
	JobTypeUnknown  JobType = "unknown"
)

type RemoteType string

const (
	RemoteTypeRemote  RemoteType = "remote"
	RemoteTypeHybrid  RemoteType = "hybrid"
	RemoteTypeOnSite  RemoteType = "on-site"
	RemoteTypeUnknown RemoteType = "unknown"
)

type ExperienceLevel string

const (
	ExperienceEntry   ExperienceLevel = "entry"
	ExperienceMid     ExperienceLevel = "mid"
	ExperienceSenior  ExperienceLevel = "senior"
	ExperienceUnknown ExperienceLevel = "unknown"
)

// NormalizedJob is the unit produced by an adapter and consumed by the
// persistence gateway.
type NormalizedJob struct {
	Title       string          `json:"title"`
	Company     string          `json:"company"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	SalaryMin   *int            `json:"salary_min,omitempty"`
	SalaryMax   *int            `json:"salary_max,omitempty"`
	JobType     JobType         `json:"job_type"`
	RemoteType  RemoteType      `json:"remote_type"`
	Experience  ExperienceLevel `json:"experience_level"`
	Skills      []string        `json:"skills,omitempty"`
	ExternalURL string          `json:"external_url"`
	SourceID    string          `json:"source_id"`
	SourceName  string          `json:"source_name"`
	PostedAt    time.Time       `json:"posted_at"`
}

// Fingerprint is the sole deduplication key within and across runs:
// stable for a given (title, company, sourceID) triple.
func (j NormalizedJob) Fingerprint() string {
	content := strings.ToLower(j.Title) + "|" + strings.ToLower(j.Company) + "|" + j.SourceID
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// SourceAdapter is the capability contract every job source implements.
// Adapters never panic or raise past their return value; per-record parse
// failures are skipped inside the adapter, not surfaced.
type SourceAdapter interface {
	Name() string
	Enabled() bool
	FetchJobs(ctx context.Context, limit int) ([]NormalizedJob, error)
}
