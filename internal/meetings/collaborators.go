package meetings

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aura-erp/meeting-scheduler/internal/mail"
	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/todos"
)

// JobScheduler persists and arms time-driven jobs. Scheduling an existing key replaces it.
type JobScheduler interface {
	ScheduleAt(ctx context.Context, key string, fireAt time.Time, payload models.JobPayload) error
	Cancel(ctx context.Context, key string) error
}

// TaskService is the todo list collaborator.
type TaskService interface {
	CreateTask(ctx context.Context, task todos.Task) error
	CompleteTask(ctx context.Context, completionEvent string, assignee uuid.UUID) error
}

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, content string) error
}

// Mailer dispatches email at least once; delivery is not confirmed to the caller.
type Mailer interface {
	SendBulk(ctx context.Context, messages []mail.Message) error
}

// RecipientDirectory resolves user ids to email addresses. Ids it cannot resolve are left out.
type RecipientDirectory interface {
	ResolveEmails(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// CalendarPublisher stores an iCalendar invite and returns a URL participants can fetch it from.
type CalendarPublisher interface {
	PublishInvite(ctx context.Context, meetingID uuid.UUID, ics []byte) (string, error)
}

// RSVPEvent is the completion event of the RSVP todo created for each participant.
func RSVPEvent(meetingID uuid.UUID) string {
	return "meeting:" + meetingID.String() + ":rsvp"
}
