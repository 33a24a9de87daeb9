package models

import "time"

// Job kinds identify which runner drives the job.
const (
	JobKindArchive      = "archive"
	JobKindFileSet      = "file_set"
	JobKindRemoteObject = "remote_object"
)

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

// Job statuses. Transitions are monotonic: queued -> running -> done|error.
// Error is terminal and freezes ProcessedFiles at the last committed value.
const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
)

// Job is one asynchronous unit of ingestion work (one archive, one file set, or
// one remote object), tracked through the status state machine.
type Job struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Status         JobStatus `json:"status"`
	TotalFiles     int       `json:"total_files"`
	ProcessedFiles int       `json:"processed_files"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == JobDone || j.Status == JobError
}
