package state

type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusSucceeded  JobStatus = "succeeded"
	StatusFailed     JobStatus = "failed"
	StatusRetrying   JobStatus = "retrying"
)

func (s JobStatus) String() string {
	return string(s)
}

// IsFetchable reports whether a worker may claim a job in this status.
func (s JobStatus) IsFetchable() bool {
	return s == StatusQueued || s == StatusRetrying
}

var AllStatuses = []JobStatus{
	StatusQueued,
	StatusProcessing,
	StatusSucceeded,
	StatusFailed,
	StatusRetrying,
}

// Parse returns the status named by s, or false when s is not a known status.
func Parse(s string) (JobStatus, bool) {
	for _, status := range AllStatuses {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

var ValidTransitions = []Transition{
	{From: StatusQueued, To: StatusProcessing},
	{From: StatusRetrying, To: StatusProcessing},
	{From: StatusProcessing, To: StatusSucceeded},
	{From: StatusProcessing, To: StatusFailed},
	{From: StatusProcessing, To: StatusRetrying},
	// lock expired or the server shut down mid-job
	{From: StatusProcessing, To: StatusQueued},
	// manual requeue from the dashboard
	{From: StatusFailed, To: StatusQueued},
	{From: StatusSucceeded, To: StatusQueued},
}

func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
