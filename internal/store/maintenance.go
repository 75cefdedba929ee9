package store

import (
	"context"
	"fmt"
	"time"
)

// ReclaimExpired finds active jobs whose lease lapsed (worker crashed or hung
// between claim and resolve) and routes each through the normal retry
// decision, recording the lost attempt in the history. The lapsed attempt
// counts toward retry_limit so a job whose handler always kills its worker
// still dead-letters instead of looping forever. Returns the number of jobs
// reclaimed.
func (s *Store) ReclaimExpired(ctx context.Context) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, classify(fmt.Errorf("begin reclaim tx: %w", err))
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, retry_count, retry_limit, retry_delay, retry_backoff,
		       COALESCE(claimed_by, ''), now()
		FROM steady_jobs
		WHERE state = 'active' AND lease_expires_at < now()
		FOR UPDATE SKIP LOCKED`,
	)
	if err != nil {
		return 0, classify(fmt.Errorf("find expired leases: %w", err))
	}

	type expired struct {
		id         string
		retryCount int
		retryLimit int
		retryDelay int
		useBackoff bool
		claimedBy  string
		now        time.Time
	}
	var stale []expired
	for rows.Next() {
		var e expired
		if err := rows.Scan(&e.id, &e.retryCount, &e.retryLimit, &e.retryDelay,
			&e.useBackoff, &e.claimedBy, &e.now); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan expired lease: %w", err)
		}
		stale = append(stale, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, classify(fmt.Errorf("find expired leases: %w", err))
	}

	for _, e := range stale {
		next, startAfter := NextAttempt(
			e.retryCount, e.retryLimit,
			time.Duration(e.retryDelay)*time.Second, e.useBackoff,
			DefaultMaxDelay, e.now,
		)
		attempt := e.retryCount + 1

		if next == StateRetry {
			_, err = tx.Exec(ctx, `
				UPDATE steady_jobs
				SET state = 'retry', retry_count = $2, start_after = $3,
				    claimed_by = NULL, lease_expires_at = NULL
				WHERE id = $1`,
				e.id, attempt, startAfter,
			)
		} else {
			_, err = tx.Exec(ctx, `
				UPDATE steady_jobs
				SET state = 'failed', retry_count = $2, completed_on = now(),
				    claimed_by = NULL, lease_expires_at = NULL
				WHERE id = $1`,
				e.id, attempt,
			)
		}
		if err != nil {
			return 0, classify(fmt.Errorf("reclaim job %s: %w", e.id, err))
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO steady_job_errors (job_id, attempt, error)
			VALUES ($1, $2, $3)`,
			e.id, attempt, fmt.Sprintf("lease expired (claimed by %s)", e.claimedBy),
		); err != nil {
			return 0, classify(fmt.Errorf("record reclaim error: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, classify(fmt.Errorf("commit reclaim tx: %w", err))
	}
	return len(stale), nil
}

// PurgeExpired deletes terminal jobs whose retention horizon has passed.
// Runs independently of the dispatch path.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM steady_jobs
		WHERE state IN ('completed', 'failed', 'cancelled')
		  AND keep_until < now()`,
	)
	if err != nil {
		return 0, classify(fmt.Errorf("purge jobs: %w", err))
	}
	return tag.RowsAffected(), nil
}
