// Package retry decides what happens to a job after a failed execution.
package retry

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/RezaEskandarii/hostfire/internal/state"
)

// MaxAttempts converts a retry count into the total number of executions
// stored with a job.
func MaxAttempts(retryAttempts int) int {
	if retryAttempts < 0 {
		retryAttempts = 0
	}
	return retryAttempts + 1
}

// Delay returns the wait before the given retry attempt (1-based):
// attempt^4 + 15 + random(0..30) * (attempt + 1) seconds.
func Delay(attempt int) time.Duration {
	return delay(attempt, rand.IntN(31))
}

func delay(attempt, jitter int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	seconds := math.Pow(float64(attempt), 4) + 15 + float64(jitter*(attempt+1))
	return time.Duration(seconds) * time.Second
}

// Next returns the status a failed job moves to and, when it is retried,
// the time it becomes due again. attempts counts executions started so far,
// including the one that just failed.
func Next(attempts, maxAttempts int, now time.Time) (state.JobStatus, time.Time) {
	if attempts < maxAttempts {
		return state.StatusRetrying, now.Add(Delay(attempts))
	}
	return state.StatusFailed, now
}
