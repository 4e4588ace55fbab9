// Package todos is the task list collaborator: tasks assigned to a user and resolved when an event fires.
package todos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
)

// Task is a request to put something on a user's list.
type Task struct {
	Assignee        uuid.UUID
	Title           string
	Description     string
	CompletionEvent string
	Link            string
	Deadline        *time.Time
}

// Service stores tasks and resolves them by completion event.
type Service struct {
	store  store.Store
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a todo service.
func NewService(s store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: s, now: time.Now, logger: logger}
}

// CreateTask adds a task to the assignee's list.
func (s *Service) CreateTask(ctx context.Context, task Task) error {
	t := &models.Todo{
		ID:              uuid.New(),
		AssigneeID:      task.Assignee,
		Title:           task.Title,
		Description:     task.Description,
		CompletionEvent: task.CompletionEvent,
		Link:            task.Link,
		Deadline:        task.Deadline,
		CreatedAt:       s.now().UTC(),
	}
	err := s.store.Update(ctx, func(q store.Queries) error {
		return q.InsertTodo(ctx, t)
	})
	if err != nil {
		return fmt.Errorf("insert todo: %w", err)
	}
	return nil
}

// CompleteTask resolves the assignee's open tasks for the event. Resolving nothing is not an error.
func (s *Service) CompleteTask(ctx context.Context, completionEvent string, assignee uuid.UUID) error {
	var n int
	err := s.store.Update(ctx, func(q store.Queries) error {
		var err error
		n, err = q.CompleteTodos(ctx, completionEvent, assignee, s.now().UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("complete todos: %w", err)
	}
	if n > 0 {
		s.logger.Debug("todos completed", zap.String("event", completionEvent), zap.String("assignee", assignee.String()), zap.Int("count", n))
	}
	return nil
}

// List returns the assignee's tasks, open ones first.
func (s *Service) List(ctx context.Context, assignee uuid.UUID, includeDone bool) ([]models.Todo, error) {
	var list []models.Todo
	err := s.store.View(ctx, func(q store.Queries) error {
		var err error
		list, err = q.ListTodos(ctx, assignee, includeDone)
		return err
	})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Todo{}
	}
	return list, nil
}
