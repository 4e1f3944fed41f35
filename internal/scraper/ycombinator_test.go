package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ycTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/api/worklist/companies", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"companies": [
			{"id": 1, "name": "Initech", "url": "https://initech.example"},
			{"id": 2, "name": ""},
			{"id": 3, "name": "Hooli", "url": "https://hooli.example"}
		]}`))
	})
	mux.HandleFunc("/api/worklist/jobs", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("company_id") {
		case "1":
			w.Write([]byte(`{"jobs": [
				{"id": 11, "title": "Platform Engineer", "description": "<p>Own the platform</p>",
				 "location": "Remote - US", "salary_min": 120, "salary_max": 180,
				 "job_type": "full_time", "skills": ["go", "kubernetes"],
				 "url": "https://initech.example/jobs/11", "created_at": "2024-01-15"},
				{"id": 12, "title": ""}
			]}`))
		case "3":
			http.Error(w, "gone", http.StatusGone)
		default:
			w.Write([]byte(`{"jobs": []}`))
		}
	})
	return httptest.NewServer(mux)
}

func TestYCombinatorAdapterFetch(t *testing.T) {
	srv := ycTestServer(t)
	defer srv.Close()

	adapter := NewYCombinatorAdapter(testAdapterExecutor(), true, nil)
	adapter.baseURL = srv.URL + "/api/worklist"

	jobs, err := adapter.FetchJobs(context.Background(), 10)
	require.NoError(t, err, "a company whose jobs endpoint errors is skipped")
	require.Len(t, jobs, 1, "nameless companies and untitled jobs are skipped")

	job := jobs[0]
	assert.Equal(t, "Platform Engineer", job.Title)
	assert.Equal(t, "Initech", job.Company)
	assert.Equal(t, "Own the platform", job.Description)
	assert.Equal(t, "11", job.SourceID)
	assert.Equal(t, "ycombinator", job.SourceName)
	assert.Equal(t, JobTypeFullTime, job.JobType)
	assert.Equal(t, RemoteTypeRemote, job.RemoteType)
	assert.Equal(t, []string{"go", "kubernetes"}, job.Skills)
	require.NotNil(t, job.SalaryMin)
	require.NotNil(t, job.SalaryMax)
	assert.Equal(t, 120, *job.SalaryMin)
	assert.Equal(t, 180, *job.SalaryMax)
	assert.Equal(t, 2024, job.PostedAt.Year())
}

func TestYCombinatorAdapterCompanyListError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := NewYCombinatorAdapter(testAdapterExecutor(), true, nil)
	adapter.baseURL = srv.URL + "/api/worklist"

	_, err := adapter.FetchJobs(context.Background(), 10)
	require.Error(t, err)
}

func TestParseJobType(t *testing.T) {
	assert.Equal(t, JobTypeFullTime, parseJobType("full_time"))
	assert.Equal(t, JobTypeFullTime, parseJobType("full-time"))
	assert.Equal(t, JobTypeFullTime, parseJobType("FULL_TIME"))
	assert.Equal(t, JobTypeFullTime, parseJobType(""))
	assert.Equal(t, JobTypeContract, parseJobType("contract"))
	assert.Equal(t, JobTypeUnknown, parseJobType("gig"))
}
