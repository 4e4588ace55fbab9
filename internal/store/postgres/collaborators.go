package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
)

// InsertTodo inserts a task.
func (q *queries) InsertTodo(ctx context.Context, t *models.Todo) error {
	const sql = `INSERT INTO todos (id, assignee_id, title, description, completion_event, link, deadline, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := q.db.Exec(ctx, sql, t.ID, t.AssigneeID, t.Title, t.Description, t.CompletionEvent, t.Link, t.Deadline, t.CompletedAt, t.CreatedAt)
	return err
}

// CompleteTodos resolves open tasks matching the completion event for one assignee.
func (q *queries) CompleteTodos(ctx context.Context, completionEvent string, assignee uuid.UUID, at time.Time) (int, error) {
	const sql = `UPDATE todos SET completed_at = $1
		WHERE completion_event = $2 AND assignee_id = $3 AND completed_at IS NULL`
	tag, err := q.db.Exec(ctx, sql, at, completionEvent, assignee)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ListTodos returns an assignee's tasks, open ones first.
func (q *queries) ListTodos(ctx context.Context, assignee uuid.UUID, includeDone bool) ([]models.Todo, error) {
	sql := `SELECT id, assignee_id, title, description, completion_event, link, deadline, completed_at, created_at
		FROM todos WHERE assignee_id = $1`
	if !includeDone {
		sql += ` AND completed_at IS NULL`
	}
	rows, err := q.db.Query(ctx, sql+` ORDER BY completed_at NULLS FIRST, created_at DESC`, assignee)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Todo
	for rows.Next() {
		var t models.Todo
		if err := rows.Scan(&t.ID, &t.AssigneeID, &t.Title, &t.Description, &t.CompletionEvent, &t.Link, &t.Deadline, &t.CompletedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// InsertNotification inserts a notification.
func (q *queries) InsertNotification(ctx context.Context, n *models.Notification) error {
	const sql = `INSERT INTO notifications (id, user_id, title, content, read_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := q.db.Exec(ctx, sql, n.ID, n.UserID, n.Title, n.Content, n.ReadAt, n.CreatedAt)
	return err
}

// ListNotifications returns a user's newest notifications.
func (q *queries) ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	rows, err := q.db.Query(ctx, `SELECT id, user_id, title, content, read_at, created_at FROM notifications
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkNotificationRead sets read_at on a notification owned by the user.
func (q *queries) MarkNotificationRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error {
	tag, err := q.db.Exec(ctx, `UPDATE notifications SET read_at = COALESCE(read_at, $1) WHERE id = $2 AND user_id = $3`, at, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// InsertEmailLog records an outbound email.
func (q *queries) InsertEmailLog(ctx context.Context, l *models.EmailLog) error {
	const sql = `INSERT INTO email_logs (id, meeting_id, email_type, recipient_id, recipient_email, subject, status, sent_at, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := q.db.Exec(ctx, sql, l.ID, l.MeetingID, l.EmailType, l.RecipientID, l.RecipientEmail, l.Subject, l.Status, l.SentAt, l.ErrorMessage, l.CreatedAt)
	return err
}

// UpdateEmailLogStatus records the delivery outcome.
func (q *queries) UpdateEmailLogStatus(ctx context.Context, id uuid.UUID, status, errMsg string, sentAt *time.Time) error {
	tag, err := q.db.Exec(ctx, `UPDATE email_logs SET status = $1, error_message = $2, sent_at = $3 WHERE id = $4`, status, errMsg, sentAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListEmailLogsByMeeting returns email logs for a meeting, newest first.
func (q *queries) ListEmailLogsByMeeting(ctx context.Context, meetingID uuid.UUID) ([]models.EmailLog, error) {
	const sql = `SELECT id, meeting_id, email_type, recipient_id, recipient_email, subject, status, sent_at, error_message, created_at
		FROM email_logs
		WHERE meeting_id = $1
		ORDER BY created_at DESC`
	rows, err := q.db.Query(ctx, sql, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.EmailLog
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.MeetingID, &el.EmailType, &el.RecipientID, &el.RecipientEmail, &subject, &el.Status, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, err
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, el)
	}
	return list, rows.Err()
}

// GetUsers returns directory entries for the given ids; unknown ids are absent from the map.
func (q *queries) GetUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	out := make(map[uuid.UUID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.db.Query(ctx, `SELECT id, email, full_name, created_at FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.CreatedAt); err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

// UpsertUser mirrors a directory entry.
func (q *queries) UpsertUser(ctx context.Context, u *models.User) error {
	const sql = `INSERT INTO users (id, email, full_name, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, full_name = EXCLUDED.full_name`
	_, err := q.db.Exec(ctx, sql, u.ID, u.Email, u.FullName, u.CreatedAt)
	return err
}
