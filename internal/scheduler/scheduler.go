// Package scheduler runs durable time-driven jobs. Job records live in the store; a Timer only
// holds which keys are armed and when, so it can be rebuilt from the records at startup.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
)

// Handler executes a fired job. It must be idempotent.
type Handler func(ctx context.Context, payload models.JobPayload) error

// Timer arms keys for a fire time and hands out the ones that are due.
type Timer interface {
	Arm(ctx context.Context, key string, fireAt time.Time) error
	Disarm(ctx context.Context, key string) error
	// Due claims up to limit keys whose fire time is at or before now.
	Due(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// Options tunes the run loop and retry policy.
type Options struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxAttempts   int
	RetryBackoff  time.Duration
	// SweepInterval is how often Run re-arms pending records whose arm was lost.
	SweepInterval time.Duration
	Now           func() time.Time
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 30 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Scheduler persists job records, arms them on a Timer and dispatches due jobs to handlers.
type Scheduler struct {
	store    store.Store
	timer    Timer
	handlers map[models.JobKind]Handler
	opts     Options
	logger   *zap.Logger
}

// New creates a scheduler.
func New(s store.Store, timer Timer, opts Options, logger *zap.Logger) *Scheduler {
	opts.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:    s,
		timer:    timer,
		handlers: make(map[models.JobKind]Handler),
		opts:     opts,
		logger:   logger,
	}
}

// Register sets the handler for a job kind. Call before Run.
func (s *Scheduler) Register(kind models.JobKind, h Handler) {
	s.handlers[kind] = h
}

func (s *Scheduler) now() time.Time {
	return s.opts.Now().UTC().Truncate(time.Microsecond)
}

// ScheduleAt persists a pending record for key and arms it. An existing record with the same key is
// replaced, which supersedes any earlier fire time.
func (s *Scheduler) ScheduleAt(ctx context.Context, key string, fireAt time.Time, payload models.JobPayload) error {
	now := s.now()
	job := &models.ScheduledJob{
		Key:       key,
		Kind:      payload.Kind,
		MeetingID: payload.MeetingID,
		FireAt:    fireAt.UTC().Truncate(time.Microsecond),
		Payload:   payload,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.store.Update(ctx, func(q store.Queries) error {
		prev, err := q.GetJob(ctx, key)
		switch {
		case err == nil:
			job.CreatedAt = prev.CreatedAt
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		return q.SaveJob(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("save job %s: %w", key, err)
	}
	if err := s.timer.Arm(ctx, key, job.FireAt); err != nil {
		// The record is pending, so the next sweep arms it.
		return fmt.Errorf("arm job %s: %w", key, err)
	}
	s.logger.Debug("job scheduled", zap.String("job_key", key), zap.Time("fire_at", job.FireAt))
	return nil
}

// Cancel marks a pending record cancelled and disarms it. Unknown keys are ignored.
func (s *Scheduler) Cancel(ctx context.Context, key string) error {
	now := s.now()
	err := s.store.Update(ctx, func(q store.Queries) error {
		job, err := q.GetJob(ctx, key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		if job.Status != models.JobStatusPending {
			return nil
		}
		job.Status = models.JobStatusCancelled
		job.UpdatedAt = now
		return q.SaveJob(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", key, err)
	}
	if err := s.timer.Disarm(ctx, key); err != nil {
		return fmt.Errorf("disarm job %s: %w", key, err)
	}
	return nil
}

// Recover re-arms every pending record. Call once at startup before Run.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	n, err := s.rearm(ctx, func(models.ScheduledJob) bool { return true })
	if err != nil {
		return n, err
	}
	s.logger.Info("scheduler recovered", zap.Int("pending", n))
	return n, nil
}

// Sweep re-arms pending records that are not due yet or are overdue by at least SweepInterval.
// Records that only just became due are skipped since they may be firing right now.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	return s.rearm(ctx, func(job models.ScheduledJob) bool {
		return job.FireAt.After(now) || now.Sub(job.FireAt) >= s.opts.SweepInterval
	})
}

func (s *Scheduler) rearm(ctx context.Context, keep func(models.ScheduledJob) bool) (int, error) {
	var pending []models.ScheduledJob
	err := s.store.View(ctx, func(q store.Queries) error {
		var err error
		pending, err = q.ListJobsByStatus(ctx, models.JobStatusPending)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list pending jobs: %w", err)
	}
	armed := 0
	var errs []error
	for _, job := range pending {
		if !keep(job) {
			continue
		}
		if err := s.timer.Arm(ctx, job.Key, job.FireAt); err != nil {
			errs = append(errs, fmt.Errorf("arm job %s: %w", job.Key, err))
			continue
		}
		armed++
	}
	return armed, errors.Join(errs...)
}

// Run polls the timer until ctx is done, sweeping pending records every SweepInterval.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	sweep := time.NewTicker(s.opts.SweepInterval)
	defer sweep.Stop()
	s.logger.Info("scheduler started",
		zap.Duration("poll_interval", s.opts.PollInterval),
		zap.Duration("sweep_interval", s.opts.SweepInterval),
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case <-sweep.C:
			if n, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("scheduler sweep failed", zap.Int("rearmed", n), zap.Error(err))
			}
		case <-ticker.C:
			if _, err := s.RunDue(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("scheduler poll failed", zap.Error(err))
			}
		}
	}
}

// RunDue fires every job that is due now, batch by batch, and returns how many handlers ran.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	fired := 0
	for {
		keys, err := s.timer.Due(ctx, s.now(), s.opts.BatchSize)
		if err != nil {
			return fired, err
		}
		for _, key := range keys {
			ran, err := s.fire(ctx, key)
			if err != nil {
				s.logger.Error("job fire failed", zap.String("job_key", key), zap.Error(err))
			}
			if ran {
				fired++
			}
		}
		if len(keys) < s.opts.BatchSize {
			return fired, nil
		}
	}
}

// fire runs the handler for one claimed key and records the outcome.
func (s *Scheduler) fire(ctx context.Context, key string) (bool, error) {
	var job *models.ScheduledJob
	err := s.store.View(ctx, func(q store.Queries) error {
		var err error
		job, err = q.GetJob(ctx, key)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load job: %w", err)
	}
	if job.Status != models.JobStatusPending {
		return false, nil
	}
	now := s.now()
	if job.FireAt.After(now) {
		// Claimed under an older fire time; wait for the current one.
		return false, s.timer.Arm(ctx, key, job.FireAt)
	}

	handler, ok := s.handlers[job.Kind]
	if !ok {
		return false, s.finish(ctx, job, fmt.Errorf("no handler for job kind %q", job.Kind), true)
	}

	log := s.logger.With(zap.String("job_key", key), zap.String("kind", string(job.Kind)))
	log.Debug("firing job", zap.Int("attempt", job.Attempts+1))
	herr := handler(ctx, job.Payload)
	if herr != nil {
		log.Warn("job handler failed", zap.Int("attempt", job.Attempts+1), zap.Error(herr))
	}
	return true, s.finish(ctx, job, herr, false)
}

// finish records a handler outcome unless the record was rescheduled or cancelled while it ran.
func (s *Scheduler) finish(ctx context.Context, fired *models.ScheduledJob, herr error, permanent bool) error {
	now := s.now()
	var (
		rearmAt *time.Time
		failed  bool
	)
	err := s.store.Update(ctx, func(q store.Queries) error {
		job, err := q.GetJob(ctx, fired.Key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		if job.Status != models.JobStatusPending || !job.FireAt.Equal(fired.FireAt) {
			return nil
		}
		job.Attempts++
		job.UpdatedAt = now
		switch {
		case herr == nil:
			job.Status = models.JobStatusDone
			job.LastError = ""
			job.FiredAt = &now
		case permanent || job.Attempts >= s.opts.MaxAttempts:
			job.Status = models.JobStatusFailed
			job.LastError = herr.Error()
			job.FiredAt = &now
			failed = true
		default:
			job.LastError = herr.Error()
			job.FireAt = now.Add(s.opts.RetryBackoff)
			next := job.FireAt
			rearmAt = &next
		}
		return q.SaveJob(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("record job outcome: %w", err)
	}
	if rearmAt != nil {
		return s.timer.Arm(ctx, fired.Key, *rearmAt)
	}
	if failed {
		s.logger.Error("job failed permanently", zap.String("job_key", fired.Key), zap.Error(herr))
	}
	return nil
}
