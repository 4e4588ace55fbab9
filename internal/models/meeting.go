package models

import (
	"time"

	"github.com/google/uuid"
)

// MeetingStatus is the lifecycle state of a meeting.
type MeetingStatus string

const (
	MeetingStatusPendingResponses MeetingStatus = "pending_responses"
	MeetingStatusScheduled        MeetingStatus = "scheduled"
	MeetingStatusCompleted        MeetingStatus = "completed"
	MeetingStatusCancelled        MeetingStatus = "cancelled"
)

// Terminal reports whether no further transition may leave this status.
func (s MeetingStatus) Terminal() bool {
	return s == MeetingStatusCompleted || s == MeetingStatusCancelled
}

// Valid reports whether s is a known status value.
func (s MeetingStatus) Valid() bool {
	switch s {
	case MeetingStatusPendingResponses, MeetingStatusScheduled, MeetingStatusCompleted, MeetingStatusCancelled:
		return true
	}
	return false
}

// Meeting is one organizer-initiated scheduling request.
type Meeting struct {
	ID                 uuid.UUID     `json:"id"`
	Title              string        `json:"title"`
	Purpose            string        `json:"purpose"`
	DurationMinutes    int           `json:"duration_minutes"`
	OrganizerID        uuid.UUID     `json:"organizer_id"`
	ResponseDeadline   time.Time     `json:"response_deadline"`
	Status             MeetingStatus `json:"status"`
	FinalizedStartTime *time.Time    `json:"finalized_start_time,omitempty"`
	Venue              *string       `json:"venue,omitempty"`
	MeetingLink        *string       `json:"meeting_link,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Duration returns the meeting length.
func (m *Meeting) Duration() time.Duration {
	return time.Duration(m.DurationMinutes) * time.Minute
}

// Participant is one invitee of a meeting.
type Participant struct {
	MeetingID uuid.UUID `json:"meeting_id"`
	UserID    uuid.UUID `json:"user_id"`
	InvitedAt time.Time `json:"invited_at"`
}

// TimeSlot is a candidate window proposed when the meeting was created.
type TimeSlot struct {
	ID        uuid.UUID `json:"id"`
	MeetingID uuid.UUID `json:"meeting_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// AvailabilityStatus is a participant's answer for one slot.
type AvailabilityStatus string

const (
	AvailabilityAvailable   AvailabilityStatus = "available"
	AvailabilityUnavailable AvailabilityStatus = "unavailable"
)

// Valid reports whether s is a known availability value.
func (s AvailabilityStatus) Valid() bool {
	return s == AvailabilityAvailable || s == AvailabilityUnavailable
}

// Availability is one participant's stated availability for one slot.
type Availability struct {
	TimeSlotID    uuid.UUID          `json:"time_slot_id"`
	ParticipantID uuid.UUID          `json:"participant_id"`
	Status        AvailabilityStatus `json:"status"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// FinalizedSlot is an append-only record of a finalization event.
type FinalizedSlot struct {
	ID         uuid.UUID `json:"id"`
	MeetingID  uuid.UUID `json:"meeting_id"`
	TimeSlotID uuid.UUID `json:"time_slot_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	CreatedAt  time.Time `json:"created_at"`
}
