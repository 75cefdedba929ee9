package store

import "time"

// NextAttempt decides what happens to a job after a failed attempt.
//
// retryCount is the number of attempts already recorded against the job; the
// attempt being resolved is retryCount+1. When attempts remain the job goes
// back to retry with a delay of retryDelay*2^retryCount (useBackoff) or a
// flat retryDelay, capped at maxDelay; otherwise it dead-letters. now must
// come from the store clock. The returned time is meaningful only when the
// returned state is StateRetry.
func NextAttempt(retryCount, retryLimit int, retryDelay time.Duration, useBackoff bool, maxDelay time.Duration, now time.Time) (string, time.Time) {
	if retryCount+1 >= retryLimit {
		return StateFailed, time.Time{}
	}

	delay := retryDelay
	if useBackoff {
		if retryCount >= 32 {
			delay = maxDelay
		} else {
			delay = retryDelay * (1 << uint(retryCount))
		}
	}
	if maxDelay > 0 && (delay > maxDelay || delay < 0) {
		delay = maxDelay
	}

	return StateRetry, now.Add(delay)
}
