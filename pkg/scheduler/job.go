package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of one download job
type JobState int

const (
	JobPending JobState = iota
	JobWaiting
	JobRunning
	JobSucceeded
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobWaiting:
		return "waiting"
	case JobRunning:
		return "running"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsFinished reports whether the job reached a terminal state
func (s JobState) IsFinished() bool {
	return s == JobSucceeded || s == JobFailed
}

// Job is one submitted URL
type Job struct {
	ID          string
	URL         string
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	State       JobState
	// WindowCount is the limiter's attempt count right after admission.
	WindowCount int
}

// NewJob creates a pending job with a fresh id
func NewJob(url string, now time.Time) *Job {
	return &Job{
		ID:          uuid.NewString(),
		URL:         url,
		SubmittedAt: now,
		State:       JobPending,
	}
}
