package types

import (
	"encoding/json"
	"time"
)

// RecurringJob is a job template that enqueues a background job every time
// its cron expression fires.
type RecurringJob struct {
	ID         string          `json:"id"`
	JobName    string          `json:"job"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"args"`
	Expression string          `json:"cron"`
	TimeZone   string          `json:"time_zone,omitempty"`
	NextRunAt  time.Time       `json:"next_run_at"`
	LastRunAt  *time.Time      `json:"last_run_at,omitempty"`
	LastJobID  *int64          `json:"last_job_id,omitempty"`
	LastError  *string         `json:"last_error,omitempty"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
