package types

import "time"

// Job is the wire form of a job submitted through the queue writer.
type Job struct {
	Queue       string    `json:"queue"`
	Name        string    `json:"name"`
	Args        []any     `json:"args"`
	ScheduledAt time.Time `json:"scheduled_at"`
	MaxAttempts int       `json:"max_attempts"`
}
