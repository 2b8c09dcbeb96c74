package model

import "time"

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobProcessing, JobCompleted, JobFailed:
		return true
	}
	return false
}

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

func (s JobStatus) rank() int {
	switch s {
	case JobPending:
		return 0
	case JobProcessing:
		return 1
	case JobCompleted, JobFailed:
		return 2
	}
	return -1
}

// CanTransition reports whether a job may move from s to next.
// Statuses only move forward: pending -> processing -> completed|failed.
// A pending job may fail directly when it never gets to run.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	if next == JobFailed {
		return true
	}
	return next.rank() == s.rank()+1
}

// Job tracks one requested send through its lifecycle.
type Job struct {
	ID          string      `json:"id"`
	PhoneNumber string      `json:"phone_number"`
	Message     string      `json:"message"`
	Status      JobStatus   `json:"status"`
	Result      *SendResult `json:"result,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// StatusFor maps a send outcome onto the terminal job status.
func StatusFor(r SendResult) JobStatus {
	if r.OK() {
		return JobCompleted
	}
	return JobFailed
}
