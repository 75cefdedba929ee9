package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EnqueueRequest contains all parameters for enqueuing a job. Name is the
// handler type the job routes to; Payload is opaque and passed verbatim to
// the handler. Two identical requests create two distinct jobs.
type EnqueueRequest struct {
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	Priority   int             `json:"priority,omitempty"`
	RetryLimit *int            `json:"retry_limit,omitempty"`
	RetryDelay *time.Duration  `json:"-"`
	UseBackoff bool            `json:"retry_backoff,omitempty"`
	StartAfter *time.Time      `json:"start_after,omitempty"`
	KeepFor    *time.Duration  `json:"-"`
}

// Enqueue inserts a new job in a single atomic write and returns its id.
// Once Enqueue returns, the job is durably visible to the dispatch loop; a
// crash immediately after a successful call never loses it. A nil StartAfter
// makes the job eligible immediately per the database clock.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if req.Name == "" {
		return "", fmt.Errorf("job name is required")
	}

	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	retryLimit := DefaultRetryLimit
	if req.RetryLimit != nil && *req.RetryLimit >= 0 {
		retryLimit = *req.RetryLimit
	}
	retryDelay := DefaultRetryDelay
	if req.RetryDelay != nil && *req.RetryDelay > 0 {
		retryDelay = *req.RetryDelay
	}
	keepFor := DefaultKeepFor
	if req.KeepFor != nil && *req.KeepFor > 0 {
		keepFor = *req.KeepFor
	}

	jobID := NewJobID()

	// created_on, start_after and keep_until all come from the database
	// clock; the caller's wall clock never reaches the row.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO steady_jobs (
			id, name, payload, state, priority,
			retry_limit, retry_delay, retry_backoff,
			start_after, keep_until
		) VALUES (
			$1, $2, $3, 'created', $4,
			$5, $6, $7,
			COALESCE($8, now()), now() + make_interval(secs => $9)
		)`,
		jobID, req.Name, payload, req.Priority,
		retryLimit, int(retryDelay/time.Second), req.UseBackoff,
		req.StartAfter, keepFor.Seconds(),
	)
	if err != nil {
		return "", classify(fmt.Errorf("enqueue job: %w", err))
	}

	return jobID, nil
}
