package store

import (
	"context"
	"fmt"
	"time"
)

// ClaimRequest contains parameters for claiming a batch of jobs.
type ClaimRequest struct {
	// Names are the handler types this worker serves; only matching jobs are
	// claimed.
	Names []string

	// WorkerID identifies the claimant and is recorded on each claimed row.
	WorkerID string

	// Limit bounds the batch. Defaults to 1.
	Limit int

	// Lease is how long the claim stays valid without being resolved before
	// the maintenance sweep may hand the job to another worker. Defaults to
	// DefaultLease.
	Lease time.Duration
}

// ClaimBatch atomically moves up to req.Limit eligible jobs to active and
// returns them. Eligible means created or retry with start_after at or before
// the database's now(); among those, higher priority wins, then older
// start_after. The locked selection and the update to active happen in one
// statement, so concurrent workers partition the eligible set: a worker that
// loses the race sees fewer rows, never an error.
func (s *Store) ClaimBatch(ctx context.Context, req ClaimRequest) ([]*Job, error) {
	if len(req.Names) == 0 {
		return nil, nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 1
	}
	lease := req.Lease
	if lease <= 0 {
		lease = DefaultLease
	}

	rows, err := s.pool.Query(ctx, `
		WITH eligible AS (
			SELECT id
			FROM steady_jobs
			WHERE state IN ('created', 'retry')
			  AND name = ANY($1)
			  AND start_after <= now()
			ORDER BY priority DESC, start_after ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		UPDATE steady_jobs j
		SET state            = 'active',
		    started_on       = now(),
		    claimed_by       = $3,
		    lease_expires_at = now() + make_interval(secs => $4)
		FROM eligible
		WHERE j.id = eligible.id
		RETURNING j.id, j.name, j.payload, j.priority,
		          j.retry_count, j.retry_limit, j.retry_delay, j.retry_backoff,
		          j.started_on, j.created_on`,
		req.Names, limit, req.WorkerID, lease.Seconds(),
	)
	if err != nil {
		return nil, classify(fmt.Errorf("claim jobs: %w", err))
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j := &Job{State: StateActive, ClaimedBy: &req.WorkerID}
		if err := rows.Scan(
			&j.ID, &j.Name, &j.Payload, &j.Priority,
			&j.RetryCount, &j.RetryLimit, &j.RetryDelay, &j.UseBackoff,
			&j.StartedOn, &j.CreatedOn,
		); err != nil {
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("claim jobs: %w", err))
	}

	return jobs, nil
}
