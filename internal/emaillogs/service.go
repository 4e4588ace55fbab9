// Package emaillogs exposes the delivery log of meeting emails to organizers.
package emaillogs

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
)

// ErrForbidden is returned when the caller does not organize the meeting.
var ErrForbidden = errors.New("emaillogs: only the organizer can view email logs")

// Service reads email logs.
type Service struct {
	store store.Store
}

// NewService creates an email log service.
func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// ListByMeeting returns the meeting's email logs, newest first. Returns store.ErrNotFound for unknown
// meetings and ErrForbidden for callers other than the organizer.
func (s *Service) ListByMeeting(ctx context.Context, meetingID, callerID uuid.UUID) ([]models.EmailLog, error) {
	var logs []models.EmailLog
	err := s.store.View(ctx, func(q store.Queries) error {
		m, err := q.GetMeeting(ctx, meetingID)
		if err != nil {
			return err
		}
		if m.OrganizerID != callerID {
			return ErrForbidden
		}
		logs, err = q.ListEmailLogsByMeeting(ctx, meetingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.EmailLog{}
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	return logs, nil
}
