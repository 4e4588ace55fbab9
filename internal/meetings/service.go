// Package meetings coordinates meeting scheduling: proposals, availability, finalization and the
// time-driven transitions that follow.
package meetings

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
	"github.com/aura-erp/meeting-scheduler/internal/todos"
)

// Options tunes coordinator behaviour per deployment.
type Options struct {
	// ReminderOffset is how long before the finalized start the reminder job fires.
	ReminderOffset time.Duration
	// AllowReschedule permits finalizing a meeting that is already scheduled.
	AllowReschedule bool
	// AppBaseURL prefixes links placed in todos and emails.
	AppBaseURL string
}

// DefaultReminderOffset is used when Options.ReminderOffset is zero.
const DefaultReminderOffset = 30 * time.Minute

// Deps wires a Service. Only Store is required; nil collaborators are skipped.
type Deps struct {
	Store     store.Store
	Jobs      JobScheduler
	Tasks     TaskService
	Notifier  Notifier
	Mailer    Mailer
	Calendar  CalendarPublisher
	Directory RecipientDirectory // nil reads the users table through Store
	Options   Options
	Now       func() time.Time
	NewID     func() uuid.UUID
	Logger    *zap.Logger
}

// Service implements the coordinator operations.
type Service struct {
	store    store.Store
	jobs     JobScheduler
	tasks    TaskService
	notifier Notifier
	mailer   Mailer
	calendar CalendarPublisher
	dir      RecipientDirectory
	opts     Options
	now      func() time.Time
	newID    func() uuid.UUID
	logger   *zap.Logger
}

// NewService builds a Service from its dependencies.
func NewService(d Deps) *Service {
	s := &Service{
		store:    d.Store,
		jobs:     d.Jobs,
		tasks:    d.Tasks,
		notifier: d.Notifier,
		mailer:   d.Mailer,
		calendar: d.Calendar,
		dir:      d.Directory,
		opts:     d.Options,
		now:      d.Now,
		newID:    d.NewID,
		logger:   d.Logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.New
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.dir == nil {
		s.dir = storeDirectory{store: s.store}
	}
	if s.opts.ReminderOffset <= 0 {
		s.opts.ReminderOffset = DefaultReminderOffset
	}
	s.opts.AppBaseURL = strings.TrimRight(s.opts.AppBaseURL, "/")
	return s
}

// clock returns the current time at the precision Postgres keeps.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// MaxDurationMinutes bounds a meeting to one day.
const MaxDurationMinutes = 24 * 60

// CreateMeetingInput is the data an organizer supplies when proposing a meeting.
type CreateMeetingInput struct {
	Title            string
	Purpose          string
	DurationMinutes  int
	ResponseDeadline time.Time
	ParticipantIDs   []uuid.UUID
	SlotStartTimes   []time.Time
}

func (in CreateMeetingInput) validate(now time.Time) error {
	v := &ValidationError{}
	if strings.TrimSpace(in.Title) == "" {
		v.add("title", "is required")
	}
	if in.DurationMinutes <= 0 {
		v.add("duration_minutes", "must be greater than zero")
	} else if in.DurationMinutes > MaxDurationMinutes {
		v.add("duration_minutes", fmt.Sprintf("must be at most %d", MaxDurationMinutes))
	}
	if in.ResponseDeadline.IsZero() {
		v.add("response_deadline", "is required")
	} else if !in.ResponseDeadline.After(now) {
		v.add("response_deadline", "must be in the future")
	}
	if len(in.ParticipantIDs) == 0 {
		v.add("participant_ids", "at least one participant is required")
	}
	for _, id := range in.ParticipantIDs {
		if id == uuid.Nil {
			v.add("participant_ids", "must not contain empty ids")
		}
	}
	if len(in.SlotStartTimes) == 0 {
		v.add("slot_start_times", "at least one time slot is required")
	}
	for _, t := range in.SlotStartTimes {
		if t.IsZero() {
			v.add("slot_start_times", "must not contain empty times")
		}
	}
	if v.HasErrors() {
		return v
	}
	return nil
}

// CreateMeeting stores a new meeting with its participants and candidate slots, then invites everyone.
func (s *Service) CreateMeeting(ctx context.Context, organizerID uuid.UUID, in CreateMeetingInput) (*models.Meeting, error) {
	now := s.clock()
	if err := in.validate(now); err != nil {
		return nil, err
	}

	m := &models.Meeting{
		ID:               s.newID(),
		Title:            strings.TrimSpace(in.Title),
		Purpose:          strings.TrimSpace(in.Purpose),
		DurationMinutes:  in.DurationMinutes,
		OrganizerID:      organizerID,
		ResponseDeadline: in.ResponseDeadline.UTC(),
		Status:           models.MeetingStatusPendingResponses,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	participantIDs := uniqueIDs(in.ParticipantIDs)
	participants := make([]models.Participant, 0, len(participantIDs))
	for _, id := range participantIDs {
		participants = append(participants, models.Participant{MeetingID: m.ID, UserID: id, InvitedAt: now})
	}

	seen := make(map[int64]struct{}, len(in.SlotStartTimes))
	slots := make([]models.TimeSlot, 0, len(in.SlotStartTimes))
	for _, start := range in.SlotStartTimes {
		start = start.UTC().Truncate(time.Microsecond)
		if _, dup := seen[start.UnixMicro()]; dup {
			continue
		}
		seen[start.UnixMicro()] = struct{}{}
		slots = append(slots, models.TimeSlot{
			ID:        s.newID(),
			MeetingID: m.ID,
			StartTime: start,
			EndTime:   start.Add(m.Duration()),
		})
	}

	err := s.store.Update(ctx, func(q store.Queries) error {
		if err := q.InsertMeeting(ctx, m); err != nil {
			return fmt.Errorf("insert meeting: %w", err)
		}
		if _, err := q.AddParticipants(ctx, participants); err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}
		if err := q.InsertTimeSlots(ctx, slots); err != nil {
			return fmt.Errorf("insert time slots: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("meeting created",
		zap.String("meeting_id", m.ID.String()),
		zap.Int("participants", len(participants)),
		zap.Int("slots", len(slots)),
	)

	s.inviteFanout(ctx, m, participantIDs)
	s.schedule(ctx, m.ID, models.JobKindDeadline, m.ResponseDeadline)
	return m, nil
}

// AvailabilityResponse is one (slot, status) pair in a submission.
type AvailabilityResponse struct {
	TimeSlotID uuid.UUID
	Status     models.AvailabilityStatus
}

// SubmitAvailability upserts the caller's answers. It never changes the meeting status.
func (s *Service) SubmitAvailability(ctx context.Context, meetingID, callerID uuid.UUID, responses []AvailabilityResponse) error {
	if len(responses) == 0 {
		return validationError("responses", "at least one response is required")
	}
	v := &ValidationError{}
	for i, r := range responses {
		if r.TimeSlotID == uuid.Nil {
			v.add(fmt.Sprintf("responses[%d].time_slot_id", i), "is required")
		}
		if !r.Status.Valid() {
			v.add(fmt.Sprintf("responses[%d].status", i), "must be available or unavailable")
		}
	}
	if v.HasErrors() {
		return v
	}

	now := s.clock()
	// A slot repeated in one request keeps its last answer.
	order := make([]uuid.UUID, 0, len(responses))
	latest := make(map[uuid.UUID]models.AvailabilityStatus, len(responses))
	for _, r := range responses {
		if _, ok := latest[r.TimeSlotID]; !ok {
			order = append(order, r.TimeSlotID)
		}
		latest[r.TimeSlotID] = r.Status
	}

	err := s.store.Update(ctx, func(q store.Queries) error {
		if _, err := s.getMeeting(ctx, q, meetingID, false); err != nil {
			return err
		}
		if _, err := q.GetParticipant(ctx, meetingID, callerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: caller is not a participant", ErrForbidden)
			}
			return fmt.Errorf("get participant: %w", err)
		}
		slots, err := q.ListTimeSlots(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("list time slots: %w", err)
		}
		owned := make(map[uuid.UUID]struct{}, len(slots))
		for _, sl := range slots {
			owned[sl.ID] = struct{}{}
		}
		rows := make([]models.Availability, 0, len(order))
		for _, slotID := range order {
			if _, ok := owned[slotID]; !ok {
				return fmt.Errorf("%w: time slot %s does not belong to meeting", ErrNotFound, slotID)
			}
			rows = append(rows, models.Availability{
				TimeSlotID:    slotID,
				ParticipantID: callerID,
				Status:        latest[slotID],
				UpdatedAt:     now,
			})
		}
		if err := q.UpsertAvailability(ctx, rows); err != nil {
			return fmt.Errorf("upsert availability: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.tasks != nil {
		if err := s.tasks.CompleteTask(ctx, RSVPEvent(meetingID), callerID); err != nil {
			s.logger.Warn("complete rsvp task failed",
				zap.String("meeting_id", meetingID.String()),
				zap.String("user_id", callerID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// FinalizeInput selects the slot and optional location details.
type FinalizeInput struct {
	TimeSlotID  uuid.UUID
	Venue       *string
	MeetingLink *string
}

func (in FinalizeInput) validate() error {
	v := &ValidationError{}
	if in.TimeSlotID == uuid.Nil {
		v.add("time_slot_id", "is required")
	}
	if in.Venue != nil && hasControl(*in.Venue) {
		v.add("venue", "must not contain control characters")
	}
	if in.MeetingLink != nil {
		if link := strings.TrimSpace(*in.MeetingLink); link != "" {
			if hasControl(link) || strings.ContainsAny(link, " \t") {
				v.add("meeting_link", "must not contain whitespace or control characters")
			} else if u, err := url.Parse(link); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				v.add("meeting_link", "must be an absolute http or https URL")
			}
		}
	}
	if v.HasErrors() {
		return v
	}
	return nil
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}

// FinalizeMeeting fixes the meeting to one of its slots and schedules the reminder and completion jobs.
func (s *Service) FinalizeMeeting(ctx context.Context, meetingID, callerID uuid.UUID, in FinalizeInput) (*models.Meeting, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.clock()

	var (
		m            *models.Meeting
		slot         models.TimeSlot
		participants []models.Participant
	)
	err := s.store.Update(ctx, func(q store.Queries) error {
		var err error
		m, err = s.getMeeting(ctx, q, meetingID, true)
		if err != nil {
			return err
		}
		if m.OrganizerID != callerID {
			return fmt.Errorf("%w: only the organizer can finalize", ErrForbidden)
		}
		if !CanTransition(m.Status, models.MeetingStatusScheduled, s.opts.AllowReschedule) {
			return fmt.Errorf("%w: meeting is already %s", ErrConflict, m.Status)
		}
		slots, err := q.ListTimeSlots(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("list time slots: %w", err)
		}
		found := false
		for _, sl := range slots {
			if sl.ID == in.TimeSlotID {
				slot, found = sl, true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: time slot %s does not belong to meeting", ErrNotFound, in.TimeSlotID)
		}

		if err := q.InsertFinalizedSlot(ctx, &models.FinalizedSlot{
			ID:         s.newID(),
			MeetingID:  m.ID,
			TimeSlotID: slot.ID,
			StartTime:  slot.StartTime,
			EndTime:    slot.EndTime,
			CreatedAt:  now,
		}); err != nil {
			return fmt.Errorf("insert finalized slot: %w", err)
		}
		if err := transition(m, models.MeetingStatusScheduled, s.opts.AllowReschedule, now); err != nil {
			return err
		}
		start := slot.StartTime
		m.FinalizedStartTime = &start
		m.Venue = trimmed(in.Venue)
		m.MeetingLink = trimmed(in.MeetingLink)
		if err := q.UpdateMeeting(ctx, m); err != nil {
			return fmt.Errorf("update meeting: %w", err)
		}
		participants, err = q.ListParticipants(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("meeting finalized",
		zap.String("meeting_id", m.ID.String()),
		zap.String("time_slot_id", slot.ID.String()),
		zap.Time("start", slot.StartTime),
	)

	if slot.StartTime.After(now) {
		remindAt := slot.StartTime.Add(-s.opts.ReminderOffset)
		if remindAt.Before(now) {
			remindAt = now
		}
		s.schedule(ctx, m.ID, models.JobKindReminder, remindAt)
	} else {
		s.cancelJob(ctx, models.JobKey(m.ID, models.JobKindReminder))
	}
	s.schedule(ctx, m.ID, models.JobKindCompletion, slot.EndTime)
	s.cancelJob(ctx, models.JobKey(m.ID, models.JobKindDeadline))

	calendarURL := s.publishInvite(ctx, m, slot)
	ids := participantIDs(participants)
	s.notifyAll(ctx, ids, "Meeting scheduled: "+m.Title, finalizedContent(m, slot))
	s.emailUsers(ctx, m.ID, models.EmailTypeFinalized, ids,
		"Meeting scheduled: "+m.Title,
		finalizedEmailBody(m, slot, s.meetingURL(m.ID), calendarURL),
	)
	return m, nil
}

// CancelMeeting moves a non-terminal meeting to cancelled and drops its pending jobs.
func (s *Service) CancelMeeting(ctx context.Context, meetingID, callerID uuid.UUID) (*models.Meeting, error) {
	now := s.clock()
	var (
		m            *models.Meeting
		participants []models.Participant
	)
	err := s.store.Update(ctx, func(q store.Queries) error {
		var err error
		m, err = s.getMeeting(ctx, q, meetingID, true)
		if err != nil {
			return err
		}
		if m.OrganizerID != callerID {
			return fmt.Errorf("%w: only the organizer can cancel", ErrForbidden)
		}
		if err := transition(m, models.MeetingStatusCancelled, false, now); err != nil {
			return err
		}
		if err := q.UpdateMeeting(ctx, m); err != nil {
			return fmt.Errorf("update meeting: %w", err)
		}
		participants, err = q.ListParticipants(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("meeting cancelled", zap.String("meeting_id", m.ID.String()))

	for _, kind := range []models.JobKind{models.JobKindDeadline, models.JobKindReminder, models.JobKindCompletion} {
		s.cancelJob(ctx, models.JobKey(m.ID, kind))
	}
	ids := participantIDs(participants)
	s.completeRSVP(ctx, m.ID, ids)
	s.notifyAll(ctx, ids, "Meeting cancelled: "+m.Title, fmt.Sprintf("%q has been cancelled by the organizer.", m.Title))
	s.emailUsers(ctx, m.ID, models.EmailTypeCancelled, ids,
		"Meeting cancelled: "+m.Title,
		fmt.Sprintf("The meeting %q has been cancelled by the organizer.\n", m.Title),
	)
	return m, nil
}

// InviteParticipants adds invitees to a live meeting and returns the ids that were not already invited.
func (s *Service) InviteParticipants(ctx context.Context, meetingID, callerID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	ids := uniqueIDs(userIDs)
	if len(ids) == 0 {
		return nil, validationError("participant_ids", "at least one participant is required")
	}
	for _, id := range ids {
		if id == uuid.Nil {
			return nil, validationError("participant_ids", "must not contain empty ids")
		}
	}
	now := s.clock()

	var (
		m         *models.Meeting
		added     []models.Participant
		finalized *models.TimeSlot
	)
	err := s.store.Update(ctx, func(q store.Queries) error {
		var err error
		m, err = s.getMeeting(ctx, q, meetingID, true)
		if err != nil {
			return err
		}
		if m.OrganizerID != callerID {
			return fmt.Errorf("%w: only the organizer can invite participants", ErrForbidden)
		}
		if m.Status.Terminal() {
			return fmt.Errorf("%w: meeting is %s", ErrConflict, m.Status)
		}
		if m.Status == models.MeetingStatusScheduled {
			fs, err := q.ListFinalizedSlots(ctx, meetingID)
			if err != nil {
				return fmt.Errorf("list finalized slots: %w", err)
			}
			if latest := latestSlot(fs); latest != nil {
				finalized = &models.TimeSlot{
					ID:        latest.TimeSlotID,
					MeetingID: latest.MeetingID,
					StartTime: latest.StartTime,
					EndTime:   latest.EndTime,
				}
			}
		}
		rows := make([]models.Participant, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, models.Participant{MeetingID: meetingID, UserID: id, InvitedAt: now})
		}
		added, err = q.AddParticipants(ctx, rows)
		if err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	addedIDs := participantIDs(added)
	if len(addedIDs) > 0 {
		s.logger.Info("participants invited",
			zap.String("meeting_id", m.ID.String()),
			zap.Int("added", len(addedIDs)),
		)
		if finalized != nil {
			s.scheduledFanout(ctx, m, *finalized, addedIDs)
		} else {
			s.inviteFanout(ctx, m, addedIDs)
		}
	}
	return addedIDs, nil
}

// ListMeetings returns the caller's organized and invited meetings for one view.
func (s *Service) ListMeetings(ctx context.Context, callerID uuid.UUID, view View) (*MeetingList, error) {
	switch view {
	case "":
		view = ViewUpcoming
	case ViewUpcoming, ViewArchived:
	default:
		return nil, validationError("view", "must be upcoming or archived")
	}
	now := s.clock()

	out := &MeetingList{Organized: []MeetingSummary{}, Invited: []MeetingSummary{}}
	err := s.store.View(ctx, func(q store.Queries) error {
		organized, err := q.ListMeetingsByOrganizer(ctx, callerID)
		if err != nil {
			return fmt.Errorf("list organized meetings: %w", err)
		}
		invited, err := q.ListMeetingsByParticipant(ctx, callerID)
		if err != nil {
			return fmt.Errorf("list invited meetings: %w", err)
		}
		for _, group := range []struct {
			meetings []models.Meeting
			dst      *[]MeetingSummary
		}{{organized, &out.Organized}, {invited, &out.Invited}} {
			for _, m := range group.meetings {
				snap, err := loadSnapshot(ctx, q, m, false)
				if err != nil {
					return err
				}
				if InView(snap, view, now) {
					*group.dst = append(*group.dst, Summarize(snap))
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetMeetingDetail returns the aggregated view of one meeting for its organizer or a participant.
func (s *Service) GetMeetingDetail(ctx context.Context, meetingID, callerID uuid.UUID) (*MeetingDetail, error) {
	snap, err := s.authorizedSnapshot(ctx, meetingID, callerID)
	if err != nil {
		return nil, err
	}
	detail := BuildDetail(snap, callerID, s.clock())
	return &detail, nil
}

// CalendarInvite renders the iCalendar invite of a scheduled or completed meeting.
func (s *Service) CalendarInvite(ctx context.Context, meetingID, callerID uuid.UUID) ([]byte, error) {
	snap, err := s.authorizedSnapshot(ctx, meetingID, callerID)
	if err != nil {
		return nil, err
	}
	m := snap.Meeting
	if m.Status != models.MeetingStatusScheduled && m.Status != models.MeetingStatusCompleted {
		return nil, fmt.Errorf("%w: meeting is %s", ErrConflict, m.Status)
	}
	latest := latestSlot(snap.Finalized)
	if latest == nil {
		return nil, fmt.Errorf("%w: meeting has no finalized slot", ErrConflict)
	}
	return BuildICS(m, latest.StartTime, latest.EndTime, s.meetingURL(m.ID), s.clock()), nil
}

func (s *Service) authorizedSnapshot(ctx context.Context, meetingID, callerID uuid.UUID) (Snapshot, error) {
	var snap Snapshot
	err := s.store.View(ctx, func(q store.Queries) error {
		m, err := s.getMeeting(ctx, q, meetingID, false)
		if err != nil {
			return err
		}
		snap, err = loadSnapshot(ctx, q, *m, true)
		if err != nil {
			return err
		}
		if m.OrganizerID == callerID {
			return nil
		}
		for _, p := range snap.Participants {
			if p.UserID == callerID {
				return nil
			}
		}
		return fmt.Errorf("%w: caller is neither organizer nor participant", ErrForbidden)
	})
	return snap, err
}

func (s *Service) getMeeting(ctx context.Context, q store.Queries, id uuid.UUID, lock bool) (*models.Meeting, error) {
	var (
		m   *models.Meeting
		err error
	)
	if lock {
		m, err = q.LockMeeting(ctx, id)
	} else {
		m, err = q.GetMeeting(ctx, id)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: meeting %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	return m, nil
}

// loadSnapshot reads everything the aggregator needs. Slots and users are only loaded for detail views.
func loadSnapshot(ctx context.Context, q store.Queries, m models.Meeting, full bool) (Snapshot, error) {
	snap := Snapshot{Meeting: m}
	var err error
	if snap.Participants, err = q.ListParticipants(ctx, m.ID); err != nil {
		return snap, fmt.Errorf("list participants: %w", err)
	}
	if snap.Availability, err = q.ListAvailability(ctx, m.ID); err != nil {
		return snap, fmt.Errorf("list availability: %w", err)
	}
	if snap.Finalized, err = q.ListFinalizedSlots(ctx, m.ID); err != nil {
		return snap, fmt.Errorf("list finalized slots: %w", err)
	}
	if !full {
		return snap, nil
	}
	if snap.Slots, err = q.ListTimeSlots(ctx, m.ID); err != nil {
		return snap, fmt.Errorf("list time slots: %w", err)
	}
	if snap.Users, err = q.GetUsers(ctx, participantIDs(snap.Participants)); err != nil {
		return snap, fmt.Errorf("get users: %w", err)
	}
	return snap, nil
}

func latestSlot(finalized []models.FinalizedSlot) *models.FinalizedSlot {
	var latest *models.FinalizedSlot
	for i := range finalized {
		if latest == nil || finalized[i].CreatedAt.After(latest.CreatedAt) {
			latest = &finalized[i]
		}
	}
	return latest
}

func (s *Service) meetingURL(id uuid.UUID) string {
	return s.opts.AppBaseURL + "/meetings/" + id.String()
}

// inviteFanout creates RSVP todos, notifications and invitation emails for the given invitees.
func (s *Service) inviteFanout(ctx context.Context, m *models.Meeting, userIDs []uuid.UUID) {
	link := s.meetingURL(m.ID)
	if s.tasks != nil && m.Status == models.MeetingStatusPendingResponses {
		deadline := m.ResponseDeadline
		for _, id := range userIDs {
			err := s.tasks.CreateTask(ctx, todos.Task{
				Assignee:        id,
				Title:           "RSVP for meeting: " + m.Title,
				Description:     "Tell the organizer which of the proposed times work for you.",
				CompletionEvent: RSVPEvent(m.ID),
				Link:            link,
				Deadline:        &deadline,
			})
			if err != nil {
				s.logger.Warn("create rsvp task failed",
					zap.String("meeting_id", m.ID.String()),
					zap.String("user_id", id.String()),
					zap.Error(err),
				)
			}
		}
	}
	s.notifyAll(ctx, userIDs, "Meeting invitation: "+m.Title,
		fmt.Sprintf("You are invited to %q. Please respond by %s.", m.Title, m.ResponseDeadline.Format(time.RFC1123)))
	s.emailUsers(ctx, m.ID, models.EmailTypeInvitation, userIDs,
		"Meeting invitation: "+m.Title,
		invitationEmailBody(m, link),
	)
}

// scheduledFanout tells late invitees when and where an already scheduled meeting takes place.
// There is nothing to RSVP to, so no todo is created.
func (s *Service) scheduledFanout(ctx context.Context, m *models.Meeting, slot models.TimeSlot, userIDs []uuid.UUID) {
	s.notifyAll(ctx, userIDs, "Meeting scheduled: "+m.Title, finalizedContent(m, slot))
	s.emailUsers(ctx, m.ID, models.EmailTypeFinalized, userIDs,
		"Meeting scheduled: "+m.Title,
		finalizedEmailBody(m, slot, s.meetingURL(m.ID), ""),
	)
}

func (s *Service) completeRSVP(ctx context.Context, meetingID uuid.UUID, userIDs []uuid.UUID) {
	if s.tasks == nil {
		return
	}
	for _, id := range userIDs {
		if err := s.tasks.CompleteTask(ctx, RSVPEvent(meetingID), id); err != nil {
			s.logger.Warn("complete rsvp task failed",
				zap.String("meeting_id", meetingID.String()),
				zap.String("user_id", id.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) schedule(ctx context.Context, meetingID uuid.UUID, kind models.JobKind, fireAt time.Time) {
	if s.jobs == nil {
		return
	}
	key := models.JobKey(meetingID, kind)
	payload := models.JobPayload{Kind: kind, MeetingID: meetingID}
	if err := s.jobs.ScheduleAt(ctx, key, fireAt, payload); err != nil {
		s.logger.Error("schedule job failed", zap.String("job_key", key), zap.Time("fire_at", fireAt), zap.Error(err))
	}
}

func (s *Service) cancelJob(ctx context.Context, key string) {
	if s.jobs == nil {
		return
	}
	if err := s.jobs.Cancel(ctx, key); err != nil {
		s.logger.Warn("cancel job failed", zap.String("job_key", key), zap.Error(err))
	}
}

func (s *Service) notifyAll(ctx context.Context, userIDs []uuid.UUID, title, content string) {
	if s.notifier == nil {
		return
	}
	for _, id := range userIDs {
		if err := s.notifier.Notify(ctx, id, title, content); err != nil {
			s.logger.Warn("notify failed", zap.String("user_id", id.String()), zap.Error(err))
		}
	}
}

func (s *Service) publishInvite(ctx context.Context, m *models.Meeting, slot models.TimeSlot) string {
	if s.calendar == nil {
		return ""
	}
	ics := BuildICS(*m, slot.StartTime, slot.EndTime, s.meetingURL(m.ID), s.clock())
	inviteURL, err := s.calendar.PublishInvite(ctx, m.ID, ics)
	if err != nil {
		s.logger.Warn("publish calendar invite failed", zap.String("meeting_id", m.ID.String()), zap.Error(err))
		return ""
	}
	return inviteURL
}

func participantIDs(participants []models.Participant) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
