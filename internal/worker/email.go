// Package worker delivers queued email and keeps the email log in step with the outcome.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-erp/meeting-scheduler/internal/mail"
	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
	"github.com/aura-erp/meeting-scheduler/pkg/queue"
)

// EmailProcessor pops email jobs, sends them and records the delivery status.
type EmailProcessor struct {
	store   store.Store
	sender  mail.Sender
	queue   *queue.Queue
	backoff time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewEmailProcessor creates an email delivery processor.
func NewEmailProcessor(s store.Store, sender mail.Sender, q *queue.Queue, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{store: s, sender: sender, queue: q, backoff: queue.RetryBackoff, now: time.Now, logger: logger}
}

// Process delivers one email job and marks its log entry sent.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	err := p.sender.Send(ctx, mail.Message{
		To:        payload.RecipientEmail,
		Subject:   payload.Subject,
		Body:      payload.Body,
		EmailType: payload.EmailType,
		MeetingID: payload.MeetingID,
	})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	sentAt := p.now().UTC()
	if err := p.setStatus(ctx, payload.EmailLogID, models.EmailLogStatusSent, "", &sentAt); err != nil {
		// Already delivered; a retry would send it twice.
		p.logger.Error("update email log failed", zap.String("email_log_id", payload.EmailLogID.String()), zap.Error(err))
	}
	p.logger.Info("email sent",
		zap.String("email_log_id", payload.EmailLogID.String()),
		zap.String("email_type", payload.EmailType),
	)
	return nil
}

// ProcessNext handles at most one job. It reports false when the queue was empty.
func (p *EmailProcessor) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.queue.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if job == nil {
		return false, nil
	}

	p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	procErr := p.Process(ctx, job)
	if procErr == nil {
		return true, nil
	}

	p.logger.Warn("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(procErr))
	dead, err := p.queue.Retry(ctx, job)
	if err != nil {
		return true, fmt.Errorf("retry enqueue: %w", err)
	}
	if dead {
		p.markDead(ctx, job, procErr)
	}
	return true, procErr
}

// Run loops until ctx is cancelled.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("email worker stopping")
			return
		}
		_, err := p.ProcessNext(ctx)
		if err == nil || ctx.Err() != nil {
			continue
		}
		p.logger.Error("email job error", zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(p.backoff):
		}
	}
}

func (p *EmailProcessor) markDead(ctx context.Context, job *queue.Job, cause error) {
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return
	}
	if err := p.setStatus(ctx, payload.EmailLogID, models.EmailLogStatusFailed, cause.Error(), nil); err != nil {
		p.logger.Error("update email log failed", zap.String("email_log_id", payload.EmailLogID.String()), zap.Error(err))
	}
}

func (p *EmailProcessor) setStatus(ctx context.Context, id uuid.UUID, status, errMsg string, sentAt *time.Time) error {
	return p.store.Update(ctx, func(q store.Queries) error {
		return q.UpdateEmailLogStatus(ctx, id, status, errMsg, sentAt)
	})
}
