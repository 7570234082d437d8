package types

import (
	"encoding/json"
	"time"

	"github.com/RezaEskandarii/hostfire/internal/state"
)

// EnqueuedJob is a single background job stored in the queue table.
type EnqueuedJob struct {
	ID             int64           `json:"id"`
	Queue          string          `json:"queue"`
	Name           string          `json:"job"`
	Payload        json.RawMessage `json:"args"`
	Status         state.JobStatus `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	ScheduledAt    time.Time       `json:"scheduled_at"`
	ExecutedAt     *time.Time      `json:"executed_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
	LastError      *string         `json:"last_error,omitempty"`
	LockedBy       *string         `json:"locked_by,omitempty"`
	LockedAt       *time.Time      `json:"locked_at,omitempty"`
	RecurringJobID *string         `json:"recurring_job_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Args decodes the stored payload into handler arguments.
func (j EnqueuedJob) Args() ([]any, error) {
	var args []any
	if len(j.Payload) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(j.Payload, &args); err != nil {
		return nil, err
	}
	return args, nil
}
