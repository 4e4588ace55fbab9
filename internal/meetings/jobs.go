package meetings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
)

// JobHandlers returns the dispatch table the scheduler calls when a meeting job fires.
// Every handler is idempotent: a meeting that moved on since scheduling is a no-op, not an error.
func (s *Service) JobHandlers() map[models.JobKind]func(context.Context, models.JobPayload) error {
	return map[models.JobKind]func(context.Context, models.JobPayload) error{
		models.JobKindDeadline:   s.HandleDeadline,
		models.JobKindReminder:   s.HandleReminder,
		models.JobKindCompletion: s.HandleCompletion,
	}
}

// HandleDeadline tells the organizer that responses are due. It does not change the status.
func (s *Service) HandleDeadline(ctx context.Context, p models.JobPayload) error {
	var (
		m                  *models.Meeting
		responded, invited int
	)
	err := s.store.View(ctx, func(q store.Queries) error {
		var err error
		m, err = q.GetMeeting(ctx, p.MeetingID)
		if err != nil {
			return err
		}
		if m.Status != models.MeetingStatusPendingResponses {
			return nil
		}
		snap, err := loadSnapshot(ctx, q, *m, false)
		if err != nil {
			return err
		}
		invited = len(snap.Participants)
		responded = len(respondents(snap.Availability))
		return nil
	})
	if skip, err := s.jobOutcome(p, err); skip {
		return err
	}
	if m.Status != models.MeetingStatusPendingResponses {
		s.logger.Debug("deadline job skipped", zap.String("meeting_id", m.ID.String()), zap.String("status", string(m.Status)))
		return nil
	}

	content := deadlineContent(m, responded, invited)
	s.notifyAll(ctx, []uuid.UUID{m.OrganizerID}, "Responses due: "+m.Title, content)
	s.emailUsers(ctx, m.ID, models.EmailTypeDeadline, []uuid.UUID{m.OrganizerID}, "Responses due: "+m.Title, content+"\n\n"+s.meetingURL(m.ID)+"\n")
	return nil
}

// HandleReminder reminds participants of a scheduled meeting.
func (s *Service) HandleReminder(ctx context.Context, p models.JobPayload) error {
	var (
		m            *models.Meeting
		participants []models.Participant
	)
	err := s.store.View(ctx, func(q store.Queries) error {
		var err error
		m, err = q.GetMeeting(ctx, p.MeetingID)
		if err != nil {
			return err
		}
		participants, err = q.ListParticipants(ctx, p.MeetingID)
		return err
	})
	if skip, err := s.jobOutcome(p, err); skip {
		return err
	}
	if m.Status != models.MeetingStatusScheduled {
		s.logger.Debug("reminder job skipped", zap.String("meeting_id", m.ID.String()), zap.String("status", string(m.Status)))
		return nil
	}

	ids := participantIDs(participants)
	content := reminderContent(m)
	s.notifyAll(ctx, ids, "Reminder: "+m.Title, content)
	s.emailUsers(ctx, m.ID, models.EmailTypeReminder, ids, "Reminder: "+m.Title, content+"\n\n"+s.meetingURL(m.ID)+"\n")
	return nil
}

// HandleCompletion moves a scheduled meeting to completed. Any other status is left alone.
func (s *Service) HandleCompletion(ctx context.Context, p models.JobPayload) error {
	now := s.clock()
	completed := false
	err := s.store.Update(ctx, func(q store.Queries) error {
		m, err := q.LockMeeting(ctx, p.MeetingID)
		if err != nil {
			return err
		}
		if m.Status != models.MeetingStatusScheduled {
			return nil
		}
		if err := transition(m, models.MeetingStatusCompleted, false, now); err != nil {
			return err
		}
		if err := q.UpdateMeeting(ctx, m); err != nil {
			return fmt.Errorf("update meeting: %w", err)
		}
		completed = true
		return nil
	})
	if skip, err := s.jobOutcome(p, err); skip {
		return err
	}
	if completed {
		s.logger.Info("meeting completed", zap.String("meeting_id", p.MeetingID.String()))
	}
	return nil
}

// jobOutcome reports whether a handler should stop early, and with which error.
// A meeting that no longer exists is treated as done.
func (s *Service) jobOutcome(p models.JobPayload, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("job for unknown meeting", zap.String("meeting_id", p.MeetingID.String()), zap.String("kind", string(p.Kind)))
		return true, nil
	}
	return true, fmt.Errorf("%s job for meeting %s: %w", p.Kind, p.MeetingID, err)
}
