package types

import "time"

// Server describes a running background job server.
type Server struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Queues      []string  `json:"queues"`
	WorkerCount int       `json:"worker_count"`
	StartedAt   time.Time `json:"started_at"`
	Heartbeat   time.Time `json:"heartbeat"`
}
