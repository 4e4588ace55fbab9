package models

import (
	"time"

	"github.com/google/uuid"
)

// Todo is a task on a user's list, resolved when its completion event fires.
type Todo struct {
	ID              uuid.UUID  `json:"id"`
	AssigneeID      uuid.UUID  `json:"assignee_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	CompletionEvent string     `json:"completion_event"`
	Link            string     `json:"link,omitempty"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
