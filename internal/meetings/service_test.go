package meetings

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-erp/meeting-scheduler/internal/mail"
	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
	"github.com/aura-erp/meeting-scheduler/internal/store/bolt"
	"github.com/aura-erp/meeting-scheduler/internal/todos"
)

type fakeJobs struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
	cancelled []string
}

func (j *fakeJobs) ScheduleAt(_ context.Context, key string, fireAt time.Time, _ models.JobPayload) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.scheduled == nil {
		j.scheduled = make(map[string]time.Time)
	}
	j.scheduled[key] = fireAt
	return nil
}

func (j *fakeJobs) Cancel(_ context.Context, key string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.scheduled, key)
	j.cancelled = append(j.cancelled, key)
	return nil
}

type sentNotification struct {
	userID uuid.UUID
	title  string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Notify(_ context.Context, userID uuid.UUID, title, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{userID: userID, title: title})
	return nil
}

func (n *fakeNotifier) count(userID uuid.UUID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.userID == userID {
			c++
		}
	}
	return c
}

type fakeMailer struct {
	mu   sync.Mutex
	msgs []mail.Message
	err  error
}

func (m *fakeMailer) SendBulk(_ context.Context, msgs []mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msgs...)
	return m.err
}

func (m *fakeMailer) ofType(emailType string) []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mail.Message
	for _, msg := range m.msgs {
		if msg.EmailType == emailType {
			out = append(out, msg)
		}
	}
	return out
}

type fakeCalendar struct {
	uploads map[uuid.UUID][]byte
}

func (c *fakeCalendar) PublishInvite(_ context.Context, meetingID uuid.UUID, ics []byte) (string, error) {
	if c.uploads == nil {
		c.uploads = make(map[uuid.UUID][]byte)
	}
	c.uploads[meetingID] = ics
	return "https://calendar.example.com/" + meetingID.String() + ".ics", nil
}

type fixture struct {
	svc      *Service
	store    store.Store
	tasks    *todos.Service
	jobs     *fakeJobs
	notifier *fakeNotifier
	mailer   *fakeMailer
	calendar *fakeCalendar
	now      time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	st, err := bolt.Open(filepath.Join(t.TempDir(), "meetings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		store:    st,
		tasks:    todos.NewService(st, nil),
		jobs:     &fakeJobs{},
		notifier: &fakeNotifier{},
		mailer:   &fakeMailer{},
		calendar: &fakeCalendar{},
		now:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(Deps{
		Store:    st,
		Jobs:     f.jobs,
		Tasks:    f.tasks,
		Notifier: f.notifier,
		Mailer:   f.mailer,
		Calendar: f.calendar,
		Options:  opts,
		Now:      func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) addUser(t *testing.T, name, email string) uuid.UUID {
	t.Helper()
	u := &models.User{ID: uuid.New(), FullName: name, Email: email, CreatedAt: f.now}
	require.NoError(t, f.store.Update(context.Background(), func(q store.Queries) error {
		return q.UpsertUser(context.Background(), u)
	}))
	return u.ID
}

// createMeeting proposes a one hour meeting with slots one and two days out.
func (f *fixture) createMeeting(t *testing.T, organizer uuid.UUID, participants ...uuid.UUID) *models.Meeting {
	t.Helper()
	m, err := f.svc.CreateMeeting(context.Background(), organizer, CreateMeetingInput{
		Title:            "Quarterly planning",
		Purpose:          "Agree on Q2 goals",
		DurationMinutes:  60,
		ResponseDeadline: f.now.Add(12 * time.Hour),
		ParticipantIDs:   participants,
		SlotStartTimes:   []time.Time{f.now.Add(24 * time.Hour), f.now.Add(48 * time.Hour)},
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) slots(t *testing.T, meetingID uuid.UUID) (first, second models.TimeSlot) {
	t.Helper()
	var slots []models.TimeSlot
	require.NoError(t, f.store.View(context.Background(), func(q store.Queries) error {
		var err error
		slots, err = q.ListTimeSlots(context.Background(), meetingID)
		return err
	}))
	require.Len(t, slots, 2)
	if slots[1].StartTime.Before(slots[0].StartTime) {
		slots[0], slots[1] = slots[1], slots[0]
	}
	return slots[0], slots[1]
}

func slotSummary(t *testing.T, d *MeetingDetail, id uuid.UUID) SlotSummary {
	t.Helper()
	for _, s := range d.Slots {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("slot %s not in detail", id)
	return SlotSummary{}
}

func groupOf(t *testing.T, d *MeetingDetail, userID uuid.UUID) ParticipantGroup {
	t.Helper()
	for _, p := range d.Participants {
		if p.UserID == userID {
			return p.Group
		}
	}
	t.Fatalf("participant %s not in detail", userID)
	return ""
}

func TestCreateMeetingValidation(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.CreateMeeting(context.Background(), uuid.New(), CreateMeetingInput{
		Title:            "  ",
		DurationMinutes:  0,
		ResponseDeadline: f.now.Add(-time.Hour),
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	for _, field := range []string{"title", "duration_minutes", "response_deadline", "participant_ids", "slot_start_times"} {
		assert.Contains(t, vErr.FieldErrors, field)
	}
}

func TestCreateMeetingFansOutInvitations(t *testing.T) {
	f := newFixture(t, Options{AppBaseURL: "https://meet.example.com/"})
	ctx := context.Background()
	organizer := uuid.New()
	alice := f.addUser(t, "Alice", "alice@example.com")
	bob := uuid.New()

	m := f.createMeeting(t, organizer, alice, bob, alice)
	assert.Equal(t, models.MeetingStatusPendingResponses, m.Status)

	detail, err := f.svc.GetMeetingDetail(ctx, m.ID, organizer)
	require.NoError(t, err)
	assert.Len(t, detail.Participants, 2)
	assert.Len(t, detail.Slots, 2)
	assert.True(t, detail.IsOrganizer)

	for _, who := range []uuid.UUID{alice, bob} {
		list, err := f.tasks.List(ctx, who, false)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, RSVPEvent(m.ID), list[0].CompletionEvent)
		assert.Equal(t, "https://meet.example.com/meetings/"+m.ID.String(), list[0].Link)
		assert.Equal(t, 1, f.notifier.count(who))
	}

	invites := f.mailer.ofType(models.EmailTypeInvitation)
	require.Len(t, invites, 2, "users without an address are handed over so the mailer records them")
	to := map[uuid.UUID]string{}
	for _, msg := range invites {
		require.NotNil(t, msg.RecipientID)
		to[*msg.RecipientID] = msg.To
	}
	assert.Equal(t, "alice@example.com", to[alice])
	assert.Contains(t, to, bob)
	assert.Empty(t, to[bob])

	assert.Equal(t, m.ResponseDeadline, f.jobs.scheduled[models.JobKey(m.ID, models.JobKindDeadline)])
}

func TestCreateMeetingRejectsOverlongDuration(t *testing.T) {
	f := newFixture(t, Options{})
	in := CreateMeetingInput{
		Title:            "Offsite",
		ResponseDeadline: f.now.Add(time.Hour),
		ParticipantIDs:   []uuid.UUID{uuid.New()},
		SlotStartTimes:   []time.Time{f.now.Add(24 * time.Hour)},
	}

	for _, minutes := range []int{MaxDurationMinutes + 1, 200_000_000} {
		in.DurationMinutes = minutes
		_, err := f.svc.CreateMeeting(context.Background(), uuid.New(), in)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr, minutes)
		assert.Contains(t, vErr.FieldErrors, "duration_minutes")
	}

	in.DurationMinutes = MaxDurationMinutes
	m, err := f.svc.CreateMeeting(context.Background(), uuid.New(), in)
	require.NoError(t, err)
	var slots []models.TimeSlot
	require.NoError(t, f.store.View(context.Background(), func(q store.Queries) error {
		var err error
		slots, err = q.ListTimeSlots(context.Background(), m.ID)
		return err
	}))
	require.Len(t, slots, 1)
	slot := slots[0]
	assert.Equal(t, 24*time.Hour, slot.EndTime.Sub(slot.StartTime))
}

type fakeDirectory struct {
	emails map[uuid.UUID]string
	err    error
}

func (d *fakeDirectory) ResolveEmails(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string)
	for _, id := range ids {
		if e, ok := d.emails[id]; ok {
			out[id] = e
		}
	}
	return out, d.err
}

func TestInvitationsResolveThroughDirectory(t *testing.T) {
	f := newFixture(t, Options{})
	alice, bob := uuid.New(), uuid.New()
	dir := &fakeDirectory{emails: map[uuid.UUID]string{alice: "alice@idp.example.com"}}
	f.svc = NewService(Deps{
		Store:     f.store,
		Mailer:    f.mailer,
		Directory: dir,
		Now:       func() time.Time { return f.now },
	})

	f.createMeeting(t, uuid.New(), alice, bob)
	invites := f.mailer.ofType(models.EmailTypeInvitation)
	require.Len(t, invites, 2)
	for _, msg := range invites {
		switch *msg.RecipientID {
		case alice:
			assert.Equal(t, "alice@idp.example.com", msg.To)
		case bob:
			assert.Empty(t, msg.To)
		default:
			t.Fatalf("unexpected recipient %s", *msg.RecipientID)
		}
	}

	// A directory outage still hands every recipient to the mailer.
	dir.err = errors.New("idp unavailable")
	f.createMeeting(t, uuid.New(), alice)
	assert.Len(t, f.mailer.ofType(models.EmailTypeInvitation), 3)
}

// Scenario A.
func TestAvailabilityTallies(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer, p1, p2, p3 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	m := f.createMeeting(t, organizer, p1, p2, p3)
	slotA, slotB := f.slots(t, m.ID)

	require.NoError(t, f.svc.SubmitAvailability(ctx, m.ID, p1, []AvailabilityResponse{
		{TimeSlotID: slotA.ID, Status: models.AvailabilityAvailable},
		{TimeSlotID: slotB.ID, Status: models.AvailabilityUnavailable},
	}))

	detail, err := f.svc.GetMeetingDetail(ctx, m.ID, p1)
	require.NoError(t, err)
	a := slotSummary(t, detail, slotA.ID)
	b := slotSummary(t, detail, slotB.ID)
	assert.Equal(t, 1, a.Available)
	assert.Equal(t, 0, a.Unavailable)
	assert.Equal(t, 0, b.Available)
	assert.Equal(t, 1, b.Unavailable)
	require.NotNil(t, a.MyResponse)
	assert.Equal(t, models.AvailabilityAvailable, *a.MyResponse)
	assert.Equal(t, 1, detail.ResponseCount)
	assert.Equal(t, models.MeetingStatusPendingResponses, detail.Meeting.Status)

	open, err := f.tasks.List(ctx, p1, false)
	require.NoError(t, err)
	assert.Empty(t, open, "responding resolves the RSVP todo")
}

func TestResubmittingAvailabilityKeepsOneRowPerSlot(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer, p1 := uuid.New(), uuid.New()
	m := f.createMeeting(t, organizer, p1)
	slotA, _ := f.slots(t, m.ID)

	for _, status := range []models.AvailabilityStatus{models.AvailabilityAvailable, models.AvailabilityUnavailable, models.AvailabilityAvailable} {
		f.advance(time.Minute)
		require.NoError(t, f.svc.SubmitAvailability(ctx, m.ID, p1, []AvailabilityResponse{{TimeSlotID: slotA.ID, Status: status}}))
	}

	var rows []models.Availability
	require.NoError(t, f.store.View(ctx, func(q store.Queries) error {
		var err error
		rows, err = q.ListAvailability(ctx, m.ID)
		return err
	}))
	require.Len(t, rows, 1)
	assert.Equal(t, models.AvailabilityAvailable, rows[0].Status)
	assert.Equal(t, f.now, rows[0].UpdatedAt)
}

func TestSubmitAvailabilityErrors(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer, p1 := uuid.New(), uuid.New()
	m := f.createMeeting(t, organizer, p1)
	slotA, _ := f.slots(t, m.ID)
	other := f.createMeeting(t, organizer, p1)
	foreignSlot, _ := f.slots(t, other.ID)

	err := f.svc.SubmitAvailability(ctx, m.ID, p1, nil)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "responses")

	err = f.svc.SubmitAvailability(ctx, m.ID, p1, []AvailabilityResponse{{TimeSlotID: slotA.ID, Status: "maybe"}})
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "responses[0].status")

	err = f.svc.SubmitAvailability(ctx, uuid.New(), p1, []AvailabilityResponse{{TimeSlotID: slotA.ID, Status: models.AvailabilityAvailable}})
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.svc.SubmitAvailability(ctx, m.ID, uuid.New(), []AvailabilityResponse{{TimeSlotID: slotA.ID, Status: models.AvailabilityAvailable}})
	assert.ErrorIs(t, err, ErrForbidden)

	err = f.svc.SubmitAvailability(ctx, m.ID, p1, []AvailabilityResponse{{TimeSlotID: foreignSlot.ID, Status: models.AvailabilityAvailable}})
	assert.ErrorIs(t, err, ErrNotFound)
}

// Scenario B.
func TestFinalizeClassifiesLateInvitees(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer, p1, p2, p3 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	m := f.createMeeting(t, organizer, p1, p2, p3)
	slotA, _ := f.slots(t, m.ID)

	f.advance(time.Hour)
	venue := "  Room 4  "
	scheduled, err := f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{TimeSlotID: slotA.ID, Venue: &venue})
	require.NoError(t, err)
	assert.Equal(t, models.MeetingStatusScheduled, scheduled.Status)
	require.NotNil(t, scheduled.FinalizedStartTime)
	assert.True(t, slotA.StartTime.Equal(*scheduled.FinalizedStartTime))
	require.NotNil(t, scheduled.Venue)
	assert.Equal(t, "Room 4", *scheduled.Venue)
	assert.Nil(t, scheduled.MeetingLink)

	f.advance(time.Minute)
	p4 := uuid.New()
	added, err := f.svc.InviteParticipants(ctx, m.ID, organizer, []uuid.UUID{p4, p1})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p4}, added)

	detail, err := f.svc.GetMeetingDetail(ctx, m.ID, organizer)
	require.NoError(t, err)
	for _, p := range []uuid.UUID{p1, p2, p3} {
		assert.Equal(t, GroupInitial, groupOf(t, detail, p))
	}
	assert.Equal(t, GroupOther, groupOf(t, detail, p4))
	assert.True(t, slotSummary(t, detail, slotA.ID).Finalized)
	require.Len(t, detail.Finalizations, 1)

	late, err := f.tasks.List(ctx, p4, true)
	require.NoError(t, err)
	assert.Empty(t, late, "no RSVP todo once the meeting is scheduled")
}

func TestFinalizeSchedulesJobsAndPublishes(t *testing.T) {
	f := newFixture(t, Options{ReminderOffset: 15 * time.Minute})
	ctx := context.Background()
	organizer := uuid.New()
	alice := f.addUser(t, "Alice", "alice@example.com")
	m := f.createMeeting(t, organizer, alice)
	slotA, _ := f.slots(t, m.ID)

	_, err := f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{TimeSlotID: slotA.ID})
	require.NoError(t, err)

	assert.Equal(t, slotA.StartTime.Add(-15*time.Minute), f.jobs.scheduled[models.JobKey(m.ID, models.JobKindReminder)])
	assert.Equal(t, slotA.EndTime, f.jobs.scheduled[models.JobKey(m.ID, models.JobKindCompletion)])
	assert.NotContains(t, f.jobs.scheduled, models.JobKey(m.ID, models.JobKindDeadline))

	assert.Contains(t, string(f.calendar.uploads[m.ID]), "BEGIN:VEVENT")
	finalized := f.mailer.ofType(models.EmailTypeFinalized)
	require.Len(t, finalized, 1)
	assert.Contains(t, finalized[0].Body, "https://calendar.example.com/"+m.ID.String()+".ics")
}

func TestFinalizeByNonOrganizerIsForbidden(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer, p1 := uuid.New(), uuid.New()
	m := f.createMeeting(t, organizer, p1)
	slotA, _ := f.slots(t, m.ID)

	_, err := f.svc.FinalizeMeeting(ctx, m.ID, p1, FinalizeInput{TimeSlotID: slotA.ID})
	require.ErrorIs(t, err, ErrForbidden)

	detail, err := f.svc.GetMeetingDetail(ctx, m.ID, organizer)
	require.NoError(t, err)
	assert.Equal(t, models.MeetingStatusPendingResponses, detail.Meeting.Status)
	assert.Empty(t, detail.Finalizations)
}

func TestFinalizeErrors(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer := uuid.New()
	m := f.createMeeting(t, organizer, uuid.New())
	other := f.createMeeting(t, organizer, uuid.New())
	foreignSlot, _ := f.slots(t, other.ID)

	_, err := f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = f.svc.FinalizeMeeting(ctx, uuid.New(), organizer, FinalizeInput{TimeSlotID: foreignSlot.ID})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{TimeSlotID: foreignSlot.ID})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinalizeRejectsUnsafeLocation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer := uuid.New()
	m := f.createMeeting(t, organizer, uuid.New())
	slotA, _ := f.slots(t, m.ID)
	str := func(s string) *string { return &s }

	cases := []struct {
		name  string
		in    FinalizeInput
		field string
	}{
		{"crlf in link", FinalizeInput{MeetingLink: str("https://meet.example.com/abc\r\nATTENDEE:mailto:evil@example.com")}, "meeting_link"},
		{"space in link", FinalizeInput{MeetingLink: str("https://meet.example.com/a b")}, "meeting_link"},
		{"non http link", FinalizeInput{MeetingLink: str("javascript:alert(1)")}, "meeting_link"},
		{"relative link", FinalizeInput{MeetingLink: str("/meet/abc")}, "meeting_link"},
		{"crlf in venue", FinalizeInput{Venue: str("Room 4\r\nORGANIZER:mailto:evil@example.com")}, "venue"},
		{"lone cr in venue", FinalizeInput{Venue: str("Room 4\rX")}, "venue"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.TimeSlotID = slotA.ID
			_, err := f.svc.FinalizeMeeting(ctx, m.ID, organizer, tc.in)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Contains(t, vErr.FieldErrors, tc.field)
		})
	}

	detail, err := f.svc.GetMeetingDetail(ctx, m.ID, organizer)
	require.NoError(t, err)
	assert.Equal(t, models.MeetingStatusPendingResponses, detail.Meeting.Status)

	scheduled, err := f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{
		TimeSlotID:  slotA.ID,
		MeetingLink: str(" https://meet.example.com/abc?pwd=1 "),
	})
	require.NoError(t, err)
	require.NotNil(t, scheduled.MeetingLink)
	assert.Equal(t, "https://meet.example.com/abc?pwd=1", *scheduled.MeetingLink)
}

func TestLateInviteToScheduledMeetingGetsFinalizedDetails(t *testing.T) {
	f := newFixture(t, Options{AllowReschedule: true})
	ctx := context.Background()
	organizer := uuid.New()
	m := f.createMeeting(t, organizer, uuid.New())
	slotA, slotB := f.slots(t, m.ID)
	venue := "Room 4"

	_, err := f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{TimeSlotID: slotA.ID})
	require.NoError(t, err)
	f.advance(time.Minute)
	_, err = f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{TimeSlotID: slotB.ID, Venue: &venue})
	require.NoError(t, err)

	late := f.addUser(t, "Late", "late@example.com")
	f.advance(time.Minute)
	_, err = f.svc.InviteParticipants(ctx, m.ID, organizer, []uuid.UUID{late})
	require.NoError(t, err)

	var toLate []mail.Message
	for _, msg := range f.mailer.msgs {
		if msg.To == "late@example.com" {
			toLate = append(toLate, msg)
		}
	}
	require.Len(t, toLate, 1)
	assert.Equal(t, models.EmailTypeFinalized, toLate[0].EmailType)
	assert.Contains(t, toLate[0].Body, slotB.StartTime.Format(emailTimeLayout))
	assert.Contains(t, toLate[0].Body, "Venue:  Room 4")
	assert.NotContains(t, toLate[0].Body, "mark your availability")

	open, err := f.tasks.List(ctx, late, false)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, 1, f.notifier.count(late))
}

func TestRefinalizeIsConflictByDefault(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer := uuid.New()
	m := f.createMeeting(t, organizer, uuid.New())
	slotA, slotB := f.slots(t, m.ID)

	_, err := f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{TimeSlotID: slotA.ID})
	require.NoError(t, err)
	_, err = f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{TimeSlotID: slotB.ID})
	assert.ErrorIs(t, err, ErrConflict)

	detail, err := f.svc.GetMeetingDetail(ctx, m.ID, organizer)
	require.NoError(t, err)
	assert.Len(t, detail.Finalizations, 1)
	assert.True(t, slotA.StartTime.Equal(*detail.Meeting.FinalizedStartTime))
}

func TestRescheduleWhenAllowed(t *testing.T) {
	f := newFixture(t, Options{AllowReschedule: true})
	ctx := context.Background()
	organizer := uuid.New()
	m := f.createMeeting(t, organizer, uuid.New())
	slotA, slotB := f.slots(t, m.ID)

	_, err := f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{TimeSlotID: slotA.ID})
	require.NoError(t, err)
	f.advance(time.Minute)
	rescheduled, err := f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{TimeSlotID: slotB.ID})
	require.NoError(t, err)
	assert.True(t, slotB.StartTime.Equal(*rescheduled.FinalizedStartTime))
	assert.Equal(t, slotB.EndTime, f.jobs.scheduled[models.JobKey(m.ID, models.JobKindCompletion)])

	detail, err := f.svc.GetMeetingDetail(ctx, m.ID, organizer)
	require.NoError(t, err)
	assert.Len(t, detail.Finalizations, 2)

	// The meeting stays upcoming until the latest finalized window has ended.
	f.now = slotA.EndTime.Add(time.Minute)
	list, err := f.svc.ListMeetings(ctx, organizer, ViewUpcoming)
	require.NoError(t, err)
	assert.Len(t, list.Organized, 1)
}

// Scenario C.
func TestCompletionJobIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer, p1 := uuid.New(), uuid.New()
	m := f.createMeeting(t, organizer, p1)
	slotA, _ := f.slots(t, m.ID)
	_, err := f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{TimeSlotID: slotA.ID})
	require.NoError(t, err)

	f.now = slotA.EndTime
	payload := models.JobPayload{Kind: models.JobKindCompletion, MeetingID: m.ID}
	require.NoError(t, f.svc.HandleCompletion(ctx, payload))
	require.NoError(t, f.svc.HandleCompletion(ctx, payload))

	detail, err := f.svc.GetMeetingDetail(ctx, m.ID, p1)
	require.NoError(t, err)
	assert.Equal(t, models.MeetingStatusCompleted, detail.Meeting.Status)
	assert.False(t, detail.Upcoming)
}

func TestScheduledMeetingPastItsEndIsArchived(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer, p1 := uuid.New(), uuid.New()
	m := f.createMeeting(t, organizer, p1)
	slotA, _ := f.slots(t, m.ID)
	_, err := f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{TimeSlotID: slotA.ID})
	require.NoError(t, err)

	list, err := f.svc.ListMeetings(ctx, p1, "")
	require.NoError(t, err)
	require.Len(t, list.Invited, 1)
	assert.Empty(t, list.Organized)

	// No completion job has run; the status is still scheduled.
	f.now = slotA.EndTime.Add(time.Second)
	list, err = f.svc.ListMeetings(ctx, p1, ViewUpcoming)
	require.NoError(t, err)
	assert.Empty(t, list.Invited)

	list, err = f.svc.ListMeetings(ctx, p1, ViewArchived)
	require.NoError(t, err)
	require.Len(t, list.Invited, 1)
	assert.Equal(t, models.MeetingStatusScheduled, list.Invited[0].Status)

	_, err = f.svc.ListMeetings(ctx, p1, "everything")
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestCancelMeeting(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer, p1 := uuid.New(), uuid.New()
	m := f.createMeeting(t, organizer, p1)

	_, err := f.svc.CancelMeeting(ctx, m.ID, p1)
	require.ErrorIs(t, err, ErrForbidden)

	cancelled, err := f.svc.CancelMeeting(ctx, m.ID, organizer)
	require.NoError(t, err)
	assert.Equal(t, models.MeetingStatusCancelled, cancelled.Status)
	assert.Empty(t, f.jobs.scheduled)

	open, err := f.tasks.List(ctx, p1, false)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = f.svc.CancelMeeting(ctx, m.ID, organizer)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.InviteParticipants(ctx, m.ID, organizer, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, ErrConflict)

	list, err := f.svc.ListMeetings(ctx, organizer, ViewArchived)
	require.NoError(t, err)
	assert.Len(t, list.Organized, 1)
}

func TestInviteParticipantsErrors(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer, p1 := uuid.New(), uuid.New()
	m := f.createMeeting(t, organizer, p1)

	_, err := f.svc.InviteParticipants(ctx, m.ID, organizer, nil)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = f.svc.InviteParticipants(ctx, m.ID, p1, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, ErrForbidden)

	added, err := f.svc.InviteParticipants(ctx, m.ID, organizer, []uuid.UUID{p1})
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestDetailAccess(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer, p1 := uuid.New(), uuid.New()
	m := f.createMeeting(t, organizer, p1)

	_, err := f.svc.GetMeetingDetail(ctx, m.ID, uuid.New())
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.GetMeetingDetail(ctx, uuid.New(), organizer)
	assert.ErrorIs(t, err, ErrNotFound)

	detail, err := f.svc.GetMeetingDetail(ctx, m.ID, p1)
	require.NoError(t, err)
	assert.False(t, detail.IsOrganizer)
	assert.True(t, detail.Upcoming)
}

func TestCalendarInviteRequiresScheduledMeeting(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer, p1 := uuid.New(), uuid.New()
	m := f.createMeeting(t, organizer, p1)
	slotA, _ := f.slots(t, m.ID)

	_, err := f.svc.CalendarInvite(ctx, m.ID, p1)
	require.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{TimeSlotID: slotA.ID})
	require.NoError(t, err)
	ics, err := f.svc.CalendarInvite(ctx, m.ID, p1)
	require.NoError(t, err)
	assert.Contains(t, string(ics), "SUMMARY:Quarterly planning")
	assert.Contains(t, string(ics), "DTSTART:"+slotA.StartTime.Format("20060102T150405Z"))
}

func TestDeadlineJobNotifiesOrganizerOnlyWhilePending(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer, p1 := uuid.New(), uuid.New()
	m := f.createMeeting(t, organizer, p1)
	slotA, _ := f.slots(t, m.ID)
	payload := models.JobPayload{Kind: models.JobKindDeadline, MeetingID: m.ID}

	require.NoError(t, f.svc.HandleDeadline(ctx, payload))
	assert.Equal(t, 1, f.notifier.count(organizer))

	_, err := f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{TimeSlotID: slotA.ID})
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleDeadline(ctx, payload))
	assert.Equal(t, 1, f.notifier.count(organizer))
}

func TestReminderJobSkipsCancelledMeeting(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	organizer, p1 := uuid.New(), uuid.New()
	m := f.createMeeting(t, organizer, p1)
	slotA, _ := f.slots(t, m.ID)
	_, err := f.svc.FinalizeMeeting(ctx, m.ID, organizer, FinalizeInput{TimeSlotID: slotA.ID})
	require.NoError(t, err)
	payload := models.JobPayload{Kind: models.JobKindReminder, MeetingID: m.ID}

	before := f.notifier.count(p1)
	require.NoError(t, f.svc.HandleReminder(ctx, payload))
	assert.Equal(t, before+1, f.notifier.count(p1))

	_, err = f.svc.CancelMeeting(ctx, m.ID, organizer)
	require.NoError(t, err)
	before = f.notifier.count(p1)
	require.NoError(t, f.svc.HandleReminder(ctx, payload))
	assert.Equal(t, before, f.notifier.count(p1))
}

func TestJobsForUnknownMeetingSucceed(t *testing.T) {
	f := newFixture(t, Options{})
	id := uuid.New()
	for kind, handle := range f.svc.JobHandlers() {
		assert.NoError(t, handle(context.Background(), models.JobPayload{Kind: kind, MeetingID: id}), kind)
	}
}

func TestMailerFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t, Options{})
	f.mailer.err = errors.New("queue down")
	organizer := uuid.New()
	alice := f.addUser(t, "Alice", "alice@example.com")

	m := f.createMeeting(t, organizer, alice)
	slotA, _ := f.slots(t, m.ID)
	scheduled, err := f.svc.FinalizeMeeting(context.Background(), m.ID, organizer, FinalizeInput{TimeSlotID: slotA.ID})
	require.NoError(t, err)
	assert.Equal(t, models.MeetingStatusScheduled, scheduled.Status)
}
