package types

import (
	"time"

	"github.com/RezaEskandarii/hostfire/internal/state"
)

type JobResult struct {
	JobID       int64
	Queue       string
	Name        string
	Err         error
	Attempts    int
	MaxAttempts int
	Status      state.JobStatus
	RanAt       time.Time
	FinishedAt  time.Time
	RetryAt     time.Time
}
