package store

import (
	"context"
	"fmt"
)

// Cancel transitions a job to cancelled. Only jobs waiting to run (created or
// retry) can be cancelled; an active job must finish its attempt first, and a
// terminal job never transitions again. Both cases return ErrInvalidState.
func (s *Store) Cancel(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE steady_jobs
		SET state = 'cancelled', completed_on = now()
		WHERE id = $1 AND state IN ('created', 'retry')`,
		jobID,
	)
	if err != nil {
		return classify(fmt.Errorf("cancel job: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return s.stateConflict(ctx, jobID)
	}
	return nil
}
