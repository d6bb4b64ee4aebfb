package broker

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a job record.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusStarted  Status = "started"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
	StatusTimedOut Status = "timed_out"

	// StatusUnknown is returned for job ids whose record has been reaped
	// (or never existed). It is never stored.
	StatusUnknown Status = "unknown"
)

// Terminal reports whether the status is final. Once a job reaches a
// terminal status its record is immutable.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed || s == StatusTimedOut
}

// ErrorKind classifies job failures uniformly across the gateway and
// every worker pool.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindAuth       ErrorKind = "auth"
	ErrorKindDecode     ErrorKind = "decode"
	ErrorKindHandler    ErrorKind = "handler"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindBroker     ErrorKind = "broker"
	ErrorKindNotFound   ErrorKind = "not_found"
)

// JobError is the error envelope stored on failed and timed-out jobs.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Stack   string    `json:"stack,omitempty"`
}

// Job is a single unit of work as stored on the broker.
type Job struct {
	ID             string          `json:"id"`
	Queue          string          `json:"queue"`
	Handler        string          `json:"handler"`
	Payload        json.RawMessage `json:"payload"`
	Status         Status          `json:"status"`
	TimeoutSeconds int             `json:"timeout"`

	EnqueuedAt time.Time `json:"enqueued_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	EndedAt    time.Time `json:"ended_at,omitempty"`

	// Result is set iff Status == finished.
	Result json.RawMessage `json:"result,omitempty"`

	// Error is set iff Status is failed or timed_out.
	Error *JobError `json:"error,omitempty"`
}

// Timeout returns the per-job wall-clock budget as a duration.
func (j *Job) Timeout() time.Duration {
	return time.Duration(j.TimeoutSeconds) * time.Second
}

// Event is published on a job's pub/sub channel at every status change.
// Clients consume these through the gateway's websocket stream.
type Event struct {
	JobID     string    `json:"job_id"`
	Status    Status    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Error     *JobError `json:"error,omitempty"`
}

// timeFormat is UTC with millisecond resolution, the wire format for all
// job timestamps.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
