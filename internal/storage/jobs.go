package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

const jobColumns = `id, kind, parent_id, source_id, status, started_at, completed_at,
	opportunities_found, opportunities_published, duplicates, updated, errors_count,
	execution_time_ms, error_message`

// CreateJob inserts a job in its initial state
func (p *Postgres) CreateJob(ctx context.Context, job *domain.ScrapingJob) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO scraping_jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		jobArgs(job)...,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// FinishJob writes the job's terminal state and counters
func (p *Postgres) FinishJob(ctx context.Context, job *domain.ScrapingJob) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE scraping_jobs SET
			status = $2, completed_at = $3,
			opportunities_found = $4, opportunities_published = $5, duplicates = $6,
			updated = $7, errors_count = $8, execution_time_ms = $9, error_message = $10
		 WHERE id = $1`,
		job.ID, string(job.Status), job.CompletedAt,
		job.Found, job.Published, job.Duplicates,
		job.Updated, job.Errors, job.ExecutionTimeMS, job.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetJob loads a job by id
func (p *Postgres) GetJob(ctx context.Context, id uuid.UUID) (*domain.ScrapingJob, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM scraping_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

// ChildJobs returns the per-source jobs of a bulk job in start order
func (p *Postgres) ChildJobs(ctx context.Context, parent uuid.UUID) ([]*domain.ScrapingJob, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM scraping_jobs WHERE parent_id = $1 ORDER BY started_at`, parent)
	if err != nil {
		return nil, fmt.Errorf("query child jobs: %w", err)
	}
	defer rows.Close()

	var out []*domain.ScrapingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func jobArgs(job *domain.ScrapingJob) []any {
	return []any{
		job.ID, string(job.Kind), job.ParentID, job.SourceID, string(job.Status), job.StartedAt, job.CompletedAt,
		job.Found, job.Published, job.Duplicates, job.Updated, job.Errors,
		job.ExecutionTimeMS, job.ErrorMessage,
	}
}

func scanJob(row pgx.Row) (*domain.ScrapingJob, error) {
	var (
		job          domain.ScrapingJob
		kind, status string
	)
	err := row.Scan(
		&job.ID, &kind, &job.ParentID, &job.SourceID, &status, &job.StartedAt, &job.CompletedAt,
		&job.Found, &job.Published, &job.Duplicates, &job.Updated, &job.Errors,
		&job.ExecutionTimeMS, &job.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	return &job, nil
}
