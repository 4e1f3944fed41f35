package scraper

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// SampleAdapter synthesizes realistic postings for boards without a public
// API. It makes no network calls; source IDs are allocated from a fixed
// base so fingerprints stay stable within a board.
type SampleAdapter struct {
	name      string
	enabled   bool
	idBase    int
	urlFormat string
	companies []string
	titles    []string
	locations []string
	skills    []string
	salaryLo  [2]int
	salaryHi  [2]int
	logger    *zap.Logger
}

func NewWellfoundAdapter(enabled bool, logger *zap.Logger) *SampleAdapter {
	return newSampleAdapter(sampleOpts{
		name:      "wellfound",
		enabled:   enabled,
		idBase:    1000,
		urlFormat: "https://wellfound.com/jobs/%d",
		companies: []string{
			"TechStartup Inc", "InnovateCo", "ScaleUp Labs", "NextGen Solutions",
			"AI Dynamics", "CloudFirst", "DataFlow Systems", "DevTools Pro",
		},
		titles: []string{
			"Full Stack Engineer", "Backend Engineer", "Frontend Developer",
			"DevOps Engineer", "Data Engineer", "Product Manager", "ML Engineer",
		},
		locations: []string{
			"San Francisco, CA", "New York, NY", "Austin, TX", "Remote",
			"Seattle, WA", "Boston, MA", "Los Angeles, CA", "Denver, CO",
		},
		skills:   []string{"Python", "React", "Node.js", "AWS", "Docker", "Kubernetes", "TypeScript"},
		salaryLo: [2]int{70000, 120000},
		salaryHi: [2]int{130000, 250000},
	}, logger)
}

func NewOttaAdapter(enabled bool, logger *zap.Logger) *SampleAdapter {
	return newSampleAdapter(sampleOpts{
		name:      "otta",
		enabled:   enabled,
		idBase:    2000,
		urlFormat: "https://otta.com/jobs/%d",
		companies: []string{
			"Revolut", "Monzo", "Deliveroo", "Spotify", "Klarna",
			"Wise", "Cazoo", "GoCardless", "Darktrace", "BenevolentAI",
		},
		titles: []string{
			"Senior Software Engineer", "Senior Backend Engineer",
			"Senior Frontend Engineer", "Senior Full Stack Engineer",
		},
		locations: []string{
			"London, UK", "Berlin, Germany", "Amsterdam, Netherlands",
			"Barcelona, Spain", "Stockholm, Sweden", "Remote - Europe",
		},
		skills:   []string{"TypeScript", "React", "Python", "Go", "Kubernetes", "PostgreSQL", "GraphQL"},
		salaryLo: [2]int{60000, 100000},
		salaryHi: [2]int{110000, 180000},
	}, logger)
}

type sampleOpts struct {
	name      string
	enabled   bool
	idBase    int
	urlFormat string
	companies []string
	titles    []string
	locations []string
	skills    []string
	salaryLo  [2]int
	salaryHi  [2]int
}

func newSampleAdapter(opts sampleOpts, logger *zap.Logger) *SampleAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SampleAdapter{
		name:      opts.name,
		enabled:   opts.enabled,
		idBase:    opts.idBase,
		urlFormat: opts.urlFormat,
		companies: opts.companies,
		titles:    opts.titles,
		locations: opts.locations,
		skills:    opts.skills,
		salaryLo:  opts.salaryLo,
		salaryHi:  opts.salaryHi,
		logger:    logger.With(zap.String("source", opts.name)),
	}
}

func (s *SampleAdapter) Name() string  { return s.name }
func (s *SampleAdapter) Enabled() bool { return s.enabled }

func (s *SampleAdapter) FetchJobs(_ context.Context, limit int) ([]NormalizedJob, error) {
	jobs := make([]NormalizedJob, 0, limit)
	for i := 0; i < limit; i++ {
		title := s.titles[rand.IntN(len(s.titles))]
		min := randBetween(s.salaryLo)
		max := randBetween(s.salaryHi)
		jobs = append(jobs, NormalizedJob{
			Title:       title,
			Company:     s.companies[rand.IntN(len(s.companies))],
			Description: fmt.Sprintf("Join our team as a %s. Competitive salary, equity, and benefits.", title),
			Location:    s.locations[rand.IntN(len(s.locations))],
			SalaryMin:   &min,
			SalaryMax:   &max,
			JobType:     JobTypeFullTime,
			RemoteType:  randRemoteType(),
			Experience:  InferExperience(title),
			Skills:      sampleSkills(s.skills),
			ExternalURL: fmt.Sprintf(s.urlFormat, s.idBase+i),
			SourceID:    fmt.Sprintf("%d", s.idBase+i),
			SourceName:  s.name,
			PostedAt:    time.Now().AddDate(0, 0, -rand.IntN(14)-1),
		})
	}
	s.logger.Info("generated sample jobs", zap.Int("count", len(jobs)))
	return jobs, nil
}

func randBetween(bounds [2]int) int {
	if bounds[1] <= bounds[0] {
		return bounds[0]
	}
	return bounds[0] + rand.IntN(bounds[1]-bounds[0])
}

func randRemoteType() RemoteType {
	switch rand.IntN(3) {
	case 0:
		return RemoteTypeRemote
	case 1:
		return RemoteTypeHybrid
	default:
		return RemoteTypeOnSite
	}
}

func sampleSkills(pool []string) []string {
	n := 3 + rand.IntN(3)
	if n > len(pool) {
		n = len(pool)
	}
	idx := rand.Perm(len(pool))[:n]
	skills := make([]string, 0, n)
	for _, i := range idx {
		skills = append(skills, pool[i])
	}
	return skills
}
