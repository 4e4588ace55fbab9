package meetings

import (
	"fmt"
	"time"

	"github.com/aura-erp/meeting-scheduler/internal/models"
)

// transitions lists every forward move of the meeting state machine.
var transitions = map[models.MeetingStatus][]models.MeetingStatus{
	models.MeetingStatusPendingResponses: {models.MeetingStatusScheduled, models.MeetingStatusCancelled},
	models.MeetingStatusScheduled:        {models.MeetingStatusCompleted, models.MeetingStatusCancelled},
}

// CanTransition reports whether a meeting may move from one status to another.
// scheduled -> scheduled is only legal when rescheduling is enabled.
func CanTransition(from, to models.MeetingStatus, allowReschedule bool) bool {
	if allowReschedule && from == models.MeetingStatusScheduled && to == models.MeetingStatusScheduled {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition applies a status change to m or returns ErrConflict.
// Moving to cancelled clears the finalized fields, which only exist on scheduled or completed meetings.
func transition(m *models.Meeting, to models.MeetingStatus, allowReschedule bool, now time.Time) error {
	if !CanTransition(m.Status, to, allowReschedule) {
		return fmt.Errorf("%w: meeting is %s and cannot become %s", ErrConflict, m.Status, to)
	}
	m.Status = to
	m.UpdatedAt = now
	if to == models.MeetingStatusCancelled {
		m.FinalizedStartTime = nil
		m.Venue = nil
		m.MeetingLink = nil
	}
	return nil
}
