package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
)

func (q *queries) SaveJob(_ context.Context, job *models.ScheduledJob) error {
	return putJSON(q.tx.Bucket(bucketJobs), []byte(job.Key), job)
}

func (q *queries) GetJob(_ context.Context, key string) (*models.ScheduledJob, error) {
	var j models.ScheduledJob
	ok, err := getJSON(q.tx.Bucket(bucketJobs), []byte(key), &j)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotFound
	}
	return &j, nil
}

func (q *queries) ListJobsByStatus(_ context.Context, status models.JobStatus) ([]models.ScheduledJob, error) {
	var list []models.ScheduledJob
	err := q.tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
		var j models.ScheduledJob
		if err := json.Unmarshal(v, &j); err != nil {
			return fmt.Errorf("unmarshaling job %s: %w", k, err)
		}
		if j.Status == status {
			list = append(list, j)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].FireAt.Before(list[j].FireAt) })
	return list, nil
}

func (q *queries) InsertTodo(_ context.Context, t *models.Todo) error {
	return putJSON(q.tx.Bucket(bucketTodos), compositeKey(t.AssigneeID.String(), t.ID.String()), t)
}

func (q *queries) CompleteTodos(_ context.Context, completionEvent string, assignee uuid.UUID, at time.Time) (int, error) {
	b := q.tx.Bucket(bucketTodos)
	var open []models.Todo
	err := scanPrefix(b, compositeKey(assignee.String(), ""), func(k, v []byte) error {
		var t models.Todo
		if err := json.Unmarshal(v, &t); err != nil {
			return fmt.Errorf("unmarshaling todo %s: %w", k, err)
		}
		if t.CompletionEvent == completionEvent && t.CompletedAt == nil {
			open = append(open, t)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	// Writes happen after the cursor is done; bbolt forbids mutating under an active cursor.
	for i := range open {
		done := at
		open[i].CompletedAt = &done
		if err := putJSON(b, compositeKey(assignee.String(), open[i].ID.String()), open[i]); err != nil {
			return 0, err
		}
	}
	return len(open), nil
}

func (q *queries) ListTodos(_ context.Context, assignee uuid.UUID, includeDone bool) ([]models.Todo, error) {
	var list []models.Todo
	err := scanPrefix(q.tx.Bucket(bucketTodos), compositeKey(assignee.String(), ""), func(k, v []byte) error {
		var t models.Todo
		if err := json.Unmarshal(v, &t); err != nil {
			return fmt.Errorf("unmarshaling todo %s: %w", k, err)
		}
		if includeDone || t.CompletedAt == nil {
			list = append(list, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		oi, oj := list[i].CompletedAt == nil, list[j].CompletedAt == nil
		if oi != oj {
			return oi
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (q *queries) InsertNotification(_ context.Context, n *models.Notification) error {
	return putJSON(q.tx.Bucket(bucketNotifications), compositeKey(n.UserID.String(), n.ID.String()), n)
}

func (q *queries) ListNotifications(_ context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	var list []models.Notification
	err := scanPrefix(q.tx.Bucket(bucketNotifications), compositeKey(userID.String(), ""), func(k, v []byte) error {
		var n models.Notification
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("unmarshaling notification %s: %w", k, err)
		}
		list = append(list, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (q *queries) MarkNotificationRead(_ context.Context, id, userID uuid.UUID, at time.Time) error {
	b := q.tx.Bucket(bucketNotifications)
	key := compositeKey(userID.String(), id.String())
	var n models.Notification
	ok, err := getJSON(b, key, &n)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	if n.ReadAt != nil {
		return nil
	}
	n.ReadAt = &at
	return putJSON(b, key, n)
}

func (q *queries) InsertEmailLog(_ context.Context, l *models.EmailLog) error {
	return putJSON(q.tx.Bucket(bucketEmailLogs), []byte(l.ID.String()), l)
}

func (q *queries) UpdateEmailLogStatus(_ context.Context, id uuid.UUID, status, errMsg string, sentAt *time.Time) error {
	b := q.tx.Bucket(bucketEmailLogs)
	key := []byte(id.String())
	var l models.EmailLog
	ok, err := getJSON(b, key, &l)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	l.Status = status
	l.ErrorMessage = errMsg
	l.SentAt = sentAt
	return putJSON(b, key, l)
}

func (q *queries) ListEmailLogsByMeeting(_ context.Context, meetingID uuid.UUID) ([]models.EmailLog, error) {
	var list []models.EmailLog
	err := q.tx.Bucket(bucketEmailLogs).ForEach(func(k, v []byte) error {
		var l models.EmailLog
		if err := json.Unmarshal(v, &l); err != nil {
			return fmt.Errorf("unmarshaling email log %s: %w", k, err)
		}
		if l.MeetingID != nil && *l.MeetingID == meetingID {
			list = append(list, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (q *queries) GetUsers(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	b := q.tx.Bucket(bucketUsers)
	out := make(map[uuid.UUID]models.User, len(ids))
	for _, id := range ids {
		var u models.User
		ok, err := getJSON(b, []byte(id.String()), &u)
		if err != nil {
			return nil, err
		}
		if ok {
			out[id] = u
		}
	}
	return out, nil
}

func (q *queries) UpsertUser(_ context.Context, u *models.User) error {
	return putJSON(q.tx.Bucket(bucketUsers), []byte(u.ID.String()), u)
}
