// Package store defines the persistence contract shared by the Postgres and bbolt backends.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aura-erp/meeting-scheduler/internal/models"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("store: not found")

// Store runs Queries inside read-only or read-write transactions.
type Store interface {
	// View runs fn against a consistent snapshot. Writes inside fn are not allowed.
	View(ctx context.Context, fn func(q Queries) error) error
	// Update runs fn in a read-write transaction; a non-nil error rolls everything back.
	Update(ctx context.Context, fn func(q Queries) error) error
	Close() error
}

// Queries is the full set of operations available inside a transaction.
type Queries interface {
	MeetingQueries
	JobQueries
	TodoQueries
	NotificationQueries
	EmailLogQueries
	UserQueries
}

// MeetingQueries covers meetings and the rows they own.
type MeetingQueries interface {
	InsertMeeting(ctx context.Context, m *models.Meeting) error
	GetMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	// LockMeeting reads the meeting and holds it until the transaction ends.
	LockMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	UpdateMeeting(ctx context.Context, m *models.Meeting) error
	ListMeetingsByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]models.Meeting, error)
	ListMeetingsByParticipant(ctx context.Context, userID uuid.UUID) ([]models.Meeting, error)

	// AddParticipants inserts rows and skips (meeting, user) pairs that already exist.
	// It returns the participants that were actually inserted.
	AddParticipants(ctx context.Context, participants []models.Participant) ([]models.Participant, error)
	ListParticipants(ctx context.Context, meetingID uuid.UUID) ([]models.Participant, error)
	GetParticipant(ctx context.Context, meetingID, userID uuid.UUID) (*models.Participant, error)

	InsertTimeSlots(ctx context.Context, slots []models.TimeSlot) error
	ListTimeSlots(ctx context.Context, meetingID uuid.UUID) ([]models.TimeSlot, error)

	UpsertAvailability(ctx context.Context, rows []models.Availability) error
	ListAvailability(ctx context.Context, meetingID uuid.UUID) ([]models.Availability, error)

	InsertFinalizedSlot(ctx context.Context, fs *models.FinalizedSlot) error
	ListFinalizedSlots(ctx context.Context, meetingID uuid.UUID) ([]models.FinalizedSlot, error)
}

// JobQueries covers durable scheduler records.
type JobQueries interface {
	// SaveJob inserts or replaces the record with the same key.
	SaveJob(ctx context.Context, job *models.ScheduledJob) error
	GetJob(ctx context.Context, key string) (*models.ScheduledJob, error)
	ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]models.ScheduledJob, error)
}

// TodoQueries covers the task list collaborator.
type TodoQueries interface {
	InsertTodo(ctx context.Context, t *models.Todo) error
	// CompleteTodos marks open todos for assignee with the given event done and returns how many changed.
	CompleteTodos(ctx context.Context, completionEvent string, assignee uuid.UUID, at time.Time) (int, error)
	ListTodos(ctx context.Context, assignee uuid.UUID, includeDone bool) ([]models.Todo, error)
}

// NotificationQueries covers the notification centre.
type NotificationQueries interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error
}

// EmailLogQueries covers outbound email bookkeeping.
type EmailLogQueries interface {
	InsertEmailLog(ctx context.Context, l *models.EmailLog) error
	UpdateEmailLogStatus(ctx context.Context, id uuid.UUID, status, errMsg string, sentAt *time.Time) error
	ListEmailLogsByMeeting(ctx context.Context, meetingID uuid.UUID) ([]models.EmailLog, error)
}

// UserQueries reads the user directory.
type UserQueries interface {
	GetUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error)
	UpsertUser(ctx context.Context, u *models.User) error
}
