// Package dispatch provides durable job execution with dependency-based
// suspension. Jobs run on a bounded worker pool; a running job may suspend
// on other jobs and is re-admitted once all of them reach a terminal state.
package dispatch

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/oneprompt/agentd/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusBlocked   JobStatus = "blocked"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusRunning, JobStatusBlocked,
		JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for statuses a job can never leave
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents one unit of work tracked by the dispatcher.
//
// Lifecycle: pending -> running -> (blocked -> pending -> running)* ->
// completed | failed. Every transition is compare-and-swap guarded in the
// store, so a stale writer loses instead of clobbering.
//
// WaitingOn holds the IDs of the jobs this job suspended on, in the order
// the runner declared them. The order matters: resumption input is
// assembled in exactly this order.
type Job struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Input      string     `json:"input,omitempty"`
	Status     JobStatus  `json:"status"`
	Result     string     `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	WaitingOn  []string   `json:"waiting_on,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewJob creates a new pending job for the given kind and input
func NewJob(kind string, input string) (*Job, error) {
	if kind == "" {
		return nil, errors.New("kind cannot be empty")
	}

	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Input:     input,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// MarshalWaitingOn converts a wait set to its JSON column form.
// An empty set marshals to the empty string (NULL in the column).
func MarshalWaitingOn(ids []string) (string, error) {
	if len(ids) == 0 {
		return "", nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal waiting_on")
	}
	return string(data), nil
}

// UnmarshalWaitingOn converts the JSON column form back to a wait set
func UnmarshalWaitingOn(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal waiting_on")
	}
	return ids, nil
}
