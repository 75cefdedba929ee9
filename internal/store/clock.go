package store

import (
	"context"
	"fmt"
	"time"
)

// Now returns the current time as observed by the database itself.
//
// Every scheduling decision in this package compares against the database
// clock, either through now() in SQL or through a now() read inside the same
// transaction as the decision. Application hosts and the database host may
// disagree about the time; a job scheduled against one clock and claimed
// against another can become invisible forever or fire early. Callers that
// compute a start_after themselves should derive it from this clock.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.pool.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, classify(fmt.Errorf("read store clock: %w", err))
	}
	return now, nil
}
