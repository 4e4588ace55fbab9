package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobKind identifies which time-driven transition a job performs.
type JobKind string

const (
	JobKindDeadline   JobKind = "deadline"
	JobKindReminder   JobKind = "reminder"
	JobKindCompletion JobKind = "completion"
)

// JobStatus tracks a persisted job record.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusDone      JobStatus = "done"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobKey returns the identity of a meeting job; rescheduling the same kind replaces it.
func JobKey(meetingID uuid.UUID, kind JobKind) string {
	return meetingID.String() + ":" + string(kind)
}

// JobPayload is what a handler receives when a job fires.
type JobPayload struct {
	Kind      JobKind         `json:"kind"`
	MeetingID uuid.UUID       `json:"meeting_id"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ScheduledJob is the durable record behind an armed timer.
type ScheduledJob struct {
	Key       string     `json:"key"`
	Kind      JobKind    `json:"kind"`
	MeetingID uuid.UUID  `json:"meeting_id"`
	FireAt    time.Time  `json:"fire_at"`
	Payload   JobPayload `json:"payload"`
	Status    JobStatus  `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	FiredAt   *time.Time `json:"fired_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
