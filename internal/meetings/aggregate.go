package meetings

import (
	"time"

	"github.com/google/uuid"

	"github.com/aura-erp/meeting-scheduler/internal/models"
)

// View selects which meetings a listing returns.
type View string

const (
	ViewUpcoming View = "upcoming"
	ViewArchived View = "archived"
)

// ParticipantGroup says whether a participant was invited before or after the latest finalization.
type ParticipantGroup string

const (
	GroupInitial ParticipantGroup = "initial"
	GroupOther   ParticipantGroup = "other"
)

// Snapshot is everything stored about one meeting, loaded in a single read transaction.
type Snapshot struct {
	Meeting      models.Meeting
	Participants []models.Participant
	Slots        []models.TimeSlot
	Availability []models.Availability
	Finalized    []models.FinalizedSlot
	Users        map[uuid.UUID]models.User
}

// SlotSummary is one candidate slot with its response tally.
type SlotSummary struct {
	ID          uuid.UUID                  `json:"id"`
	StartTime   time.Time                  `json:"start_time"`
	EndTime     time.Time                  `json:"end_time"`
	Available   int                        `json:"available"`
	Unavailable int                        `json:"unavailable"`
	MyResponse  *models.AvailabilityStatus `json:"my_response,omitempty"`
	Finalized   bool                       `json:"finalized"`
}

// ParticipantView is one invitee as shown in the detail view.
type ParticipantView struct {
	UserID    uuid.UUID        `json:"user_id"`
	FullName  string           `json:"full_name,omitempty"`
	InvitedAt time.Time        `json:"invited_at"`
	Group     ParticipantGroup `json:"group"`
	Responded bool             `json:"responded"`
}

// FinalizedTime is a finalized window.
type FinalizedTime struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// MeetingDetail is the derived read model for one meeting.
type MeetingDetail struct {
	Meeting       models.Meeting         `json:"meeting"`
	Slots         []SlotSummary          `json:"slots"`
	Participants  []ParticipantView      `json:"participants"`
	Finalizations []models.FinalizedSlot `json:"finalizations"`
	ResponseCount int                    `json:"response_count"`
	IsOrganizer   bool                   `json:"is_organizer"`
	Upcoming      bool                   `json:"upcoming"`
}

// MeetingSummary is one row of a listing.
type MeetingSummary struct {
	ID                 uuid.UUID            `json:"id"`
	Title              string               `json:"title"`
	Status             models.MeetingStatus `json:"status"`
	DurationMinutes    int                  `json:"duration_minutes"`
	ResponseDeadline   time.Time            `json:"response_deadline"`
	FinalizedStartTime *time.Time           `json:"finalized_start_time,omitempty"`
	ParticipantCount   int                  `json:"participant_count"`
	ResponseCount      int                  `json:"response_count"`
	FinalizedTimes     []FinalizedTime      `json:"finalized_times"`
}

// MeetingList groups listings by the caller's role.
type MeetingList struct {
	Organized []MeetingSummary `json:"organized"`
	Invited   []MeetingSummary `json:"invited"`
}

// IsUpcoming classifies a meeting for listings. A meeting is upcoming while it is not terminal and
// either has no finalized slot or its latest finalized end has not passed. It does not depend on
// the completion job having fired.
func IsUpcoming(status models.MeetingStatus, finalizedEnds []time.Time, now time.Time) bool {
	if status.Terminal() {
		return false
	}
	if len(finalizedEnds) == 0 {
		return true
	}
	latest := finalizedEnds[0]
	for _, end := range finalizedEnds[1:] {
		if end.After(latest) {
			latest = end
		}
	}
	return !latest.Before(now)
}

// LatestFinalization returns the newest finalization time, or false when there is none.
func LatestFinalization(finalized []models.FinalizedSlot) (time.Time, bool) {
	if len(finalized) == 0 {
		return time.Time{}, false
	}
	latest := finalized[0].CreatedAt
	for _, fs := range finalized[1:] {
		if fs.CreatedAt.After(latest) {
			latest = fs.CreatedAt
		}
	}
	return latest, true
}

// ClassifyParticipant puts invitees from before (or at) the latest finalization in GroupInitial.
func ClassifyParticipant(invitedAt time.Time, finalized []models.FinalizedSlot) ParticipantGroup {
	latest, ok := LatestFinalization(finalized)
	if !ok || !invitedAt.After(latest) {
		return GroupInitial
	}
	return GroupOther
}

func finalizedEnds(finalized []models.FinalizedSlot) []time.Time {
	ends := make([]time.Time, 0, len(finalized))
	for _, fs := range finalized {
		ends = append(ends, fs.EndTime)
	}
	return ends
}

func respondents(availability []models.Availability) map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{})
	for _, a := range availability {
		out[a.ParticipantID] = struct{}{}
	}
	return out
}

// BuildDetail derives the detail view of a snapshot for one caller.
func BuildDetail(snap Snapshot, callerID uuid.UUID, now time.Time) MeetingDetail {
	type tally struct{ available, unavailable int }
	counts := make(map[uuid.UUID]*tally, len(snap.Slots))
	mine := make(map[uuid.UUID]models.AvailabilityStatus)
	for _, a := range snap.Availability {
		t, ok := counts[a.TimeSlotID]
		if !ok {
			t = &tally{}
			counts[a.TimeSlotID] = t
		}
		switch a.Status {
		case models.AvailabilityAvailable:
			t.available++
		case models.AvailabilityUnavailable:
			t.unavailable++
		}
		if a.ParticipantID == callerID {
			mine[a.TimeSlotID] = a.Status
		}
	}

	finalizedSlotIDs := make(map[uuid.UUID]struct{}, len(snap.Finalized))
	for _, fs := range snap.Finalized {
		finalizedSlotIDs[fs.TimeSlotID] = struct{}{}
	}

	slots := make([]SlotSummary, 0, len(snap.Slots))
	for _, s := range snap.Slots {
		summary := SlotSummary{ID: s.ID, StartTime: s.StartTime, EndTime: s.EndTime}
		if t, ok := counts[s.ID]; ok {
			summary.Available = t.available
			summary.Unavailable = t.unavailable
		}
		if status, ok := mine[s.ID]; ok {
			st := status
			summary.MyResponse = &st
		}
		_, summary.Finalized = finalizedSlotIDs[s.ID]
		slots = append(slots, summary)
	}

	responded := respondents(snap.Availability)
	participants := make([]ParticipantView, 0, len(snap.Participants))
	for _, p := range snap.Participants {
		_, ok := responded[p.UserID]
		participants = append(participants, ParticipantView{
			UserID:    p.UserID,
			FullName:  snap.Users[p.UserID].FullName,
			InvitedAt: p.InvitedAt,
			Group:     ClassifyParticipant(p.InvitedAt, snap.Finalized),
			Responded: ok,
		})
	}

	finalizations := snap.Finalized
	if finalizations == nil {
		finalizations = []models.FinalizedSlot{}
	}

	return MeetingDetail{
		Meeting:       snap.Meeting,
		Slots:         slots,
		Participants:  participants,
		Finalizations: finalizations,
		ResponseCount: len(responded),
		IsOrganizer:   snap.Meeting.OrganizerID == callerID,
		Upcoming:      IsUpcoming(snap.Meeting.Status, finalizedEnds(snap.Finalized), now),
	}
}

// Summarize derives the listing row of a snapshot.
func Summarize(snap Snapshot) MeetingSummary {
	times := make([]FinalizedTime, 0, len(snap.Finalized))
	for _, fs := range snap.Finalized {
		times = append(times, FinalizedTime{StartTime: fs.StartTime, EndTime: fs.EndTime})
	}
	return MeetingSummary{
		ID:                 snap.Meeting.ID,
		Title:              snap.Meeting.Title,
		Status:             snap.Meeting.Status,
		DurationMinutes:    snap.Meeting.DurationMinutes,
		ResponseDeadline:   snap.Meeting.ResponseDeadline,
		FinalizedStartTime: snap.Meeting.FinalizedStartTime,
		ParticipantCount:   len(snap.Participants),
		ResponseCount:      len(respondents(snap.Availability)),
		FinalizedTimes:     times,
	}
}

// InView reports whether a snapshot belongs to the requested listing view.
func InView(snap Snapshot, view View, now time.Time) bool {
	upcoming := IsUpcoming(snap.Meeting.Status, finalizedEnds(snap.Finalized), now)
	if view == ViewArchived {
		return !upcoming
	}
	return upcoming
}
