package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
	"github.com/aura-erp/meeting-scheduler/pkg/queue"
)

// ErrRecipientUnknown marks a message whose recipient has no known address. It is logged as failed
// and never enqueued.
var ErrRecipientUnknown = errors.New("recipient unknown")

// Enqueuer hands an email job to the delivery worker.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// QueueDispatcher records each message in the email log and enqueues it for the worker.
type QueueDispatcher struct {
	store  store.Store
	queue  Enqueuer
	now    func() time.Time
	logger *zap.Logger
}

// NewQueueDispatcher creates a dispatcher.
func NewQueueDispatcher(s store.Store, q Enqueuer, logger *zap.Logger) *QueueDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueDispatcher{store: s, queue: q, now: time.Now, logger: logger}
}

// SendBulk logs every message as pending and enqueues it. One failing message does not stop the rest;
// the joined error reports all failures.
func (d *QueueDispatcher) SendBulk(ctx context.Context, messages []Message) error {
	var errs []error
	for _, msg := range messages {
		if err := d.dispatch(ctx, msg); err != nil {
			fields := []zap.Field{zap.String("to", msg.To), zap.String("email_type", msg.EmailType), zap.Error(err)}
			if msg.RecipientID != nil {
				fields = append(fields, zap.String("user_id", msg.RecipientID.String()))
			}
			d.logger.Warn("email dispatch failed", fields...)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *QueueDispatcher) dispatch(ctx context.Context, msg Message) error {
	entry := &models.EmailLog{
		ID:             uuid.New(),
		MeetingID:      msg.MeetingID,
		EmailType:      msg.EmailType,
		RecipientID:    msg.RecipientID,
		RecipientEmail: msg.To,
		Subject:        msg.Subject,
		Status:         models.EmailLogStatusPending,
		CreatedAt:      d.now().UTC(),
	}
	if msg.To == "" {
		entry.Status = models.EmailLogStatusFailed
		entry.ErrorMessage = ErrRecipientUnknown.Error()
	}
	err := d.store.Update(ctx, func(q store.Queries) error {
		return q.InsertEmailLog(ctx, entry)
	})
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	if msg.To == "" {
		return ErrRecipientUnknown
	}

	err = d.queue.EnqueueEmail(ctx, queue.EmailPayload{
		EmailLogID:     entry.ID,
		MeetingID:      msg.MeetingID,
		EmailType:      msg.EmailType,
		RecipientEmail: msg.To,
		Subject:        msg.Subject,
		Body:           msg.Body,
	})
	if err != nil {
		// The message never reached the queue.
		uerr := d.store.Update(ctx, func(q store.Queries) error {
			return q.UpdateEmailLogStatus(ctx, entry.ID, models.EmailLogStatusFailed, err.Error(), nil)
		})
		if uerr != nil {
			d.logger.Warn("mark email log failed", zap.String("email_log_id", entry.ID.String()), zap.Error(uerr))
		}
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}
