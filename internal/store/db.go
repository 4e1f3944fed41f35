package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"

	"github.com/bekzodm/jobscout/internal/scraper"
)

// Store is the persistence gateway. Identity resolution (company
// lookup/creation and existing-job detection) lives here, behind the
// orchestrator's single UpsertBatch call.
type Store struct {
	db *sql.DB
}

func NewStore(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RunMigrations(schemaPath string) error {
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// UpsertBatch persists a deduplicated batch in one transaction and
// returns how many jobs were newly inserted. The durable identity check
// is (title, company, source), stricter than the in-memory fingerprint.
func (s *Store) UpsertBatch(ctx context.Context, jobs []scraper.NormalizedJob) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert batch: %w", err)
	}
	defer tx.Rollback()

	saved := 0
	for _, job := range jobs {
		companyID, err := s.getOrCreateCompany(ctx, tx, job.Company)
		if err != nil {
			return 0, fmt.Errorf("resolve company %q: %w", job.Company, err)
		}

		var exists bool
		err = tx.QueryRowContext(ctx, `
SELECT EXISTS (
    SELECT 1 FROM jobs
    WHERE title = $1 AND company_id = $2 AND source = $3
)
`, job.Title, companyID, job.SourceName).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("check existing job: %w", err)
		}
		if exists {
			continue
		}

		_, err = tx.ExecContext(ctx, `
INSERT INTO jobs (
    title, company_id, company_name, description, location,
    salary_min, salary_max, job_type, remote_type, experience_level,
    skills, external_url, source, source_id, posted_at, is_active, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, TRUE, NOW())
`, job.Title, companyID, job.Company, job.Description, job.Location,
			job.SalaryMin, job.SalaryMax, string(job.JobType), string(job.RemoteType),
			string(job.Experience), pq.Array(job.Skills), job.ExternalURL,
			job.SourceName, job.SourceID, job.PostedAt)
		if err != nil {
			return 0, fmt.Errorf("insert job %q: %w", job.Title, err)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert batch: %w", err)
	}
	return saved, nil
}

func (s *Store) getOrCreateCompany(ctx context.Context, tx *sql.Tx, name string) (int, error) {
	if name == "" {
		return 0, errors.New("empty company name")
	}

	var id int
	err := tx.QueryRowContext(ctx, `SELECT id FROM companies WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	err = tx.QueryRowContext(ctx, `
INSERT INTO companies (name, created_at)
VALUES ($1, NOW())
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id
`, name).Scan(&id)
	return id, err
}

// DeleteOldJobs removes postings past the retention window.
func (s *Store) DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
DELETE FROM jobs
WHERE COALESCE(posted_at, created_at) < $1
`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountActiveJobs supports the admin status endpoint.
func (s *Store) CountActiveJobs(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE is_active`).Scan(&n)
	return n, err
}
