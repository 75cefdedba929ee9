package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetJob returns a job with its attempt history. It never mutates state and
// is safe to poll at arbitrary frequency.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	var j Job
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, state, payload, priority,
		       retry_count, retry_limit, retry_delay, retry_backoff,
		       start_after, created_on, started_on, completed_on,
		       keep_until, claimed_by, lease_expires_at
		FROM steady_jobs
		WHERE id = $1`,
		id,
	).Scan(
		&j.ID, &j.Name, &j.State, &j.Payload, &j.Priority,
		&j.RetryCount, &j.RetryLimit, &j.RetryDelay, &j.UseBackoff,
		&j.StartAfter, &j.CreatedOn, &j.StartedOn, &j.CompletedOn,
		&j.KeepUntil, &j.ClaimedBy, &j.LeaseExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get job: %w", err))
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, attempt, error, created_on
		FROM steady_job_errors
		WHERE job_id = $1
		ORDER BY attempt`,
		id,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("query job errors: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var je JobError
		if err := rows.Scan(&je.ID, &je.JobID, &je.Attempt, &je.Error, &je.CreatedOn); err != nil {
			return nil, fmt.Errorf("scan job error: %w", err)
		}
		j.Errors = append(j.Errors, je)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("query job errors: %w", err))
	}

	return &j, nil
}

// CountsByName returns live state counts grouped by job name.
func (s *Store) CountsByName(ctx context.Context) ([]QueueCounts, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, state, count(*)
		FROM steady_jobs
		GROUP BY name, state
		ORDER BY name`,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("count jobs: %w", err))
	}
	defer rows.Close()

	byName := map[string]*QueueCounts{}
	var order []string
	for rows.Next() {
		var (
			name, state string
			n           int
		)
		if err := rows.Scan(&name, &state, &n); err != nil {
			return nil, fmt.Errorf("scan counts: %w", err)
		}
		qc, ok := byName[name]
		if !ok {
			qc = &QueueCounts{Name: name}
			byName[name] = qc
			order = append(order, name)
		}
		switch state {
		case StateCreated:
			qc.Created = n
		case StateActive:
			qc.Active = n
		case StateCompleted:
			qc.Completed = n
		case StateRetry:
			qc.Retry = n
		case StateFailed:
			qc.Failed = n
		case StateCancelled:
			qc.Cancelled = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("count jobs: %w", err))
	}

	out := make([]QueueCounts, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}
