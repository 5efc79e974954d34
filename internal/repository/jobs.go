package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rankscan/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrJobNotFound is returned when a job id or window has no record.
var ErrJobNotFound = errors.New("backfill job not found")

const jobColumns = `id, range_start, range_end, token_scope, status, tokens_processed,
	last_processed_cmc_id, errors, started_at, completed_at, created_at, updated_at`

func (r *Repository) CreateJob(ctx context.Context, rangeStart, rangeEnd time.Time, tokenScope int) (*models.BackfillJob, error) {
	id := uuid.NewString()
	row := r.db.QueryRow(ctx, `
		INSERT INTO backfill_jobs (id, range_start, range_end, token_scope, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING `+jobColumns,
		id, models.Day(rangeStart), models.Day(rangeEnd), tokenScope, models.JobQueued,
	)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create backfill job: %w", err)
	}
	return job, nil
}

func (r *Repository) FindJobByID(ctx context.Context, id string) (*models.BackfillJob, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM backfill_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// FindJobByWindow looks up the unique job for a window triple.
// Returns (nil, nil) when no job exists for the window.
func (r *Repository) FindJobByWindow(ctx context.Context, rangeStart, rangeEnd time.Time, tokenScope int) (*models.BackfillJob, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM backfill_jobs
		WHERE range_start = $1 AND range_end = $2 AND token_scope = $3`,
		models.Day(rangeStart), models.Day(rangeEnd), tokenScope,
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

func (r *Repository) ListJobs(ctx context.Context, limit int) ([]models.BackfillJob, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM backfill_jobs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.BackfillJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// SetJobStatus performs a guarded status transition: the update only
// applies while the job is in one of the expected source states.
// Returns ErrJobNotFound when the job is missing or not in an expected
// state, so callers can surface the rejection.
func (r *Repository) SetJobStatus(ctx context.Context, id string, to models.JobStatus, from ...models.JobStatus) error {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE backfill_jobs
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)`,
		to, id, states,
	)
	if err != nil {
		return fmt.Errorf("failed to set job %s status %s: %w", id, to, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkJobRunning transitions QUEUED->RUNNING and stamps started_at on
// the first run only.
func (r *Repository) MarkJobRunning(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE backfill_jobs
		SET status = $1, started_at = COALESCE(started_at, NOW()), updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		models.JobRunning, id, models.JobQueued,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job %s running: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// UpdateJobProgress persists the per-token checkpoint: a crash after
// this write loses at most the in-flight token.
func (r *Repository) UpdateJobProgress(ctx context.Context, id string, tokensProcessed int, lastCmcID int64, errs []string) error {
	if errs == nil {
		errs = []string{}
	}
	_, err := r.db.Exec(ctx, `
		UPDATE backfill_jobs
		SET tokens_processed = $1, last_processed_cmc_id = $2, errors = $3, updated_at = NOW()
		WHERE id = $4`,
		tokensProcessed, lastCmcID, errs, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s progress: %w", id, err)
	}
	return nil
}

// FinalizeJob writes the run outcome (COMPLETE or FAILED) along with
// the final counters and error list.
func (r *Repository) FinalizeJob(ctx context.Context, id string, status models.JobStatus, tokensProcessed int, errs []string) error {
	if errs == nil {
		errs = []string{}
	}
	_, err := r.db.Exec(ctx, `
		UPDATE backfill_jobs
		SET status = $1, tokens_processed = $2, errors = $3, completed_at = NOW(), updated_at = NOW()
		WHERE id = $4`,
		status, tokensProcessed, errs, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize job %s: %w", id, err)
	}
	return nil
}

func scanJob(row pgx.Row) (*models.BackfillJob, error) {
	var j models.BackfillJob
	err := row.Scan(&j.ID, &j.RangeStart, &j.RangeEnd, &j.TokenScope, &j.Status, &j.TokensProcessed,
		&j.LastProcessedCmcID, &j.Errors, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.RangeStart = models.Day(j.RangeStart)
	j.RangeEnd = models.Day(j.RangeEnd)
	return &j, nil
}
