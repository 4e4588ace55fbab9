// Package notifications is the in-app notification centre: stored per user and pushed live over
// Redis pub/sub to connected WebSocket clients.
package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
)

// DefaultListLimit caps GET /notifications.
const DefaultListLimit = 50

// Publisher pushes a stored notification to live subscribers.
type Publisher interface {
	PublishNotification(ctx context.Context, n models.Notification) error
}

// Service stores notifications and fans them out to live clients.
type Service struct {
	store     store.Store
	publisher Publisher
	now       func() time.Time
	logger    *zap.Logger
}

// NewService creates a notification service. publisher may be nil.
func NewService(s store.Store, publisher Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: s, publisher: publisher, now: time.Now, logger: logger}
}

// Notify stores a notification for userID and publishes it. Publish failures are logged only;
// the stored row is what GET /notifications serves.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, title, content string) error {
	n := models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	err := s.store.Update(ctx, func(q store.Queries) error {
		return q.InsertNotification(ctx, &n)
	})
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishNotification(ctx, n); err != nil {
			s.logger.Warn("publish notification failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
	return nil
}

// List returns the user's newest notifications.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	var list []models.Notification
	err := s.store.View(ctx, func(q store.Queries) error {
		var err error
		list, err = q.ListNotifications(ctx, userID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Notification{}
	}
	return list, nil
}

// MarkRead marks one of the user's notifications read. Returns store.ErrNotFound for other users' ids.
func (s *Service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	return s.store.Update(ctx, func(q store.Queries) error {
		return q.MarkNotificationRead(ctx, id, userID, s.now().UTC())
	})
}
