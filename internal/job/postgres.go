package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// schema is applied on startup. Additive changes only; the table is shared
// with the enqueuing API layer.
const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	job_type     TEXT NOT NULL,
	status       TEXT NOT NULL,
	progress     INT NOT NULL DEFAULT 0,
	stage_label  TEXT NOT NULL DEFAULT '',
	input_ref    TEXT NOT NULL,
	output_ref   TEXT,
	error_detail TEXT,
	params       JSONB,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (status);
`

// PostgresStore is the durable implementation of Store backed by Postgres.
// Claiming and terminal transitions are expressed as conditional UPDATEs so
// the state machine is enforced at the row level, not just in memory.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore and applies the schema.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply jobs schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Create inserts a new job row.
func (s *PostgresStore) Create(ctx context.Context, j *Job) error {
	c := j.Clone()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, job_type, status, progress, stage_label, input_ref, params, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, string(c.Type), string(c.Status), c.Progress, c.StageLabel, c.InputRef, []byte(c.Params), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// FindByID retrieves a job row by ID.
func (s *PostgresStore) FindByID(ctx context.Context, jobID string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, job_type, status, progress, stage_label, input_ref, output_ref, error_detail, params,
		       created_at, updated_at, started_at, completed_at
		FROM jobs WHERE id = $1`, jobID)
	return scanJob(row)
}

// List returns all job rows, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]*Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_type, status, progress, stage_label, input_ref, output_ref, error_detail, params,
		       created_at, updated_at, started_at, completed_at
		FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes a job row.
func (s *PostgresStore) Delete(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Claim performs the atomic QUEUED->PROCESSING transition. The conditional
// UPDATE guarantees exactly one of any number of concurrent claimants wins.
func (s *PostgresStore) Claim(ctx context.Context, jobID string) (*Job, error) {
	now := time.Now()
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = $1, started_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING id, job_type, status, progress, stage_label, input_ref, output_ref, error_detail, params,
		          created_at, updated_at, started_at, completed_at`,
		string(StatusProcessing), now, jobID, string(StatusQueued),
	)
	j, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		// Row missing or not QUEUED; check which.
		if _, findErr := s.FindByID(ctx, jobID); findErr != nil {
			return nil, findErr
		}
		return nil, ErrAlreadyClaimed
	}
	return j, err
}

// SetProgress records a checkpoint; GREATEST keeps progress monotonic even if
// writes arrive out of order.
func (s *PostgresStore) SetProgress(ctx context.Context, jobID string, percent int, stageLabel string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET progress = GREATEST(progress, LEAST($1, 100)), stage_label = $2, updated_at = $3
		WHERE id = $4`,
		percent, stageLabel, time.Now(), jobID,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCompleted finalizes a PROCESSING job with its output reference.
func (s *PostgresStore) MarkCompleted(ctx context.Context, jobID string, outputRef string) error {
	now := time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $1, output_ref = $2, progress = 100, completed_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5`,
		string(StatusCompleted), outputRef, now, jobID, string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, jobID)
	}
	return nil
}

// MarkFailed finalizes a PROCESSING job with its failure detail. Progress is
// left at the last completed checkpoint.
func (s *PostgresStore) MarkFailed(ctx context.Context, jobID string, stageLabel, detail string) error {
	now := time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $1, error_detail = $2, stage_label = COALESCE(NULLIF($3, ''), stage_label),
		    completed_at = $4, updated_at = $4
		WHERE id = $5 AND status = $6`,
		string(StatusFailed), detail, stageLabel, now, jobID, string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, jobID)
	}
	return nil
}

// Cancel marks a QUEUED or PROCESSING job CANCELLED. A PROCESSING job keeps
// running until its worker observes the new status at a stage boundary.
func (s *PostgresStore) Cancel(ctx context.Context, jobID string) error {
	now := time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $1, completed_at = $2, updated_at = $2
		WHERE id = $3 AND status = ANY($4)`,
		string(StatusCancelled), now, jobID, []string{string(StatusQueued), string(StatusProcessing)},
	)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, jobID)
	}
	return nil
}

// FailStuck fails PROCESSING jobs not updated within the lease window. This
// is the liveness sweep for workers that died mid-job; their jobs would
// otherwise sit in PROCESSING forever. Returns the IDs of the failed jobs.
func (s *PostgresStore) FailStuck(ctx context.Context, lease time.Duration) ([]string, error) {
	now := time.Now()
	rows, err := s.pool.Query(ctx, `
		UPDATE jobs
		SET status = $1, error_detail = $2, completed_at = $3, updated_at = $3
		WHERE status = $4 AND updated_at < $5
		RETURNING id`,
		string(StatusFailed), "worker lease expired", now, string(StatusProcessing), now.Add(-lease),
	)
	if err != nil {
		return nil, fmt.Errorf("fail stuck jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var jobID string
		if err := rows.Scan(&jobID); err != nil {
			return nil, fmt.Errorf("scan stuck job id: %w", err)
		}
		ids = append(ids, jobID)
	}
	return ids, rows.Err()
}

// transitionError distinguishes "job missing" from "job in the wrong state"
// after a conditional UPDATE matched no rows.
func (s *PostgresStore) transitionError(ctx context.Context, jobID string) error {
	if _, err := s.FindByID(ctx, jobID); err != nil {
		return err
	}
	return ErrInvalidTransition
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j           Job
		jobType     string
		status      string
		outputRef   *string
		errorDetail *string
		params      []byte
		startedAt   *time.Time
		completedAt *time.Time
	)
	err := row.Scan(&j.ID, &jobType, &status, &j.Progress, &j.StageLabel, &j.InputRef,
		&outputRef, &errorDetail, &params, &j.CreatedAt, &j.UpdatedAt, &startedAt, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	j.Type = Type(jobType)
	j.Status = Status(status)
	j.Params = params
	if outputRef != nil {
		j.OutputRef = *outputRef
	}
	if errorDetail != nil {
		j.ErrorDetail = *errorDetail
	}
	if startedAt != nil {
		j.StartedAt = *startedAt
	}
	if completedAt != nil {
		j.CompletedAt = *completedAt
	}
	return &j, nil
}
