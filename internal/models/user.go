package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a directory entry owned by the identity system; the coordinator only reads it.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}
