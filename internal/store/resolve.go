package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ResolveResult reports where a job landed after a failed attempt.
type ResolveResult struct {
	State      string     `json:"state"`
	RetryCount int        `json:"retry_count"`
	StartAfter *time.Time `json:"start_after,omitempty"`
}

// Complete marks an active job as successfully finished.
func (s *Store) Complete(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE steady_jobs
		SET state = 'completed', completed_on = now(),
		    claimed_by = NULL, lease_expires_at = NULL
		WHERE id = $1 AND state = 'active'`,
		jobID,
	)
	if err != nil {
		return classify(fmt.Errorf("complete job: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return s.stateConflict(ctx, jobID)
	}
	return nil
}

// Fail records a failed attempt for an active job and decides whether it
// retries or dead-letters. The retry decision, the retry_count increment and
// the attempt history row commit in one transaction, with now() read from
// the database inside that same transaction.
func (s *Store) Fail(ctx context.Context, jobID, errMsg string, permanent bool) (*ResolveResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, classify(fmt.Errorf("begin fail tx: %w", err))
	}
	defer tx.Rollback(ctx)

	var (
		state      string
		retryCount int
		retryLimit int
		retryDelay int
		useBackoff bool
		now        time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT state, retry_count, retry_limit, retry_delay, retry_backoff, now()
		FROM steady_jobs
		WHERE id = $1
		FOR UPDATE`,
		jobID,
	).Scan(&state, &retryCount, &retryLimit, &retryDelay, &useBackoff, &now)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("load job for fail: %w", err))
	}
	if state != StateActive {
		return nil, fmt.Errorf("job %q is %s: %w", jobID, state, ErrInvalidState)
	}

	next, startAfter := NextAttempt(
		retryCount, retryLimit,
		time.Duration(retryDelay)*time.Second, useBackoff,
		DefaultMaxDelay, now,
	)
	if permanent {
		next = StateFailed
	}
	attempt := retryCount + 1

	if next == StateRetry {
		_, err = tx.Exec(ctx, `
			UPDATE steady_jobs
			SET state = 'retry', retry_count = $2, start_after = $3,
			    claimed_by = NULL, lease_expires_at = NULL
			WHERE id = $1`,
			jobID, attempt, startAfter,
		)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE steady_jobs
			SET state = 'failed', retry_count = $2, completed_on = now(),
			    claimed_by = NULL, lease_expires_at = NULL
			WHERE id = $1`,
			jobID, attempt,
		)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("resolve failed attempt: %w", err))
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO steady_job_errors (job_id, attempt, error)
		VALUES ($1, $2, $3)`,
		jobID, attempt, errMsg,
	); err != nil {
		return nil, classify(fmt.Errorf("record attempt error: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(fmt.Errorf("commit fail tx: %w", err))
	}

	res := &ResolveResult{State: next, RetryCount: attempt}
	if next == StateRetry {
		res.StartAfter = &startAfter
	}
	return res, nil
}

// stateConflict distinguishes a missing job from one whose state disallows
// the attempted operation.
func (s *Store) stateConflict(ctx context.Context, jobID string) error {
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM steady_jobs WHERE id = $1`, jobID,
	).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return classify(fmt.Errorf("load job state: %w", err))
	}
	return fmt.Errorf("job %q is %s: %w", jobID, state, ErrInvalidState)
}
