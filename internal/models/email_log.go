package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailType for meeting automation.
const (
	EmailTypeInvitation = "meeting_invitation"
	EmailTypeDeadline   = "response_deadline"
	EmailTypeFinalized  = "meeting_finalized"
	EmailTypeReminder   = "meeting_reminder"
	EmailTypeCancelled  = "meeting_cancelled"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusPending = "pending"
	EmailLogStatusSent    = "sent"
	EmailLogStatusFailed  = "failed"
)

// EmailLog records sent automation emails.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	MeetingID      *uuid.UUID `json:"meeting_id,omitempty"`
	EmailType      string     `json:"email_type"`
	RecipientID    *uuid.UUID `json:"recipient_id,omitempty"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
