package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
)

const meetingColumns = `id, title, purpose, duration_minutes, organizer_id, response_deadline, status,
	finalized_start_time, venue, meeting_link, created_at, updated_at`

func scanMeeting(row pgx.Row) (*models.Meeting, error) {
	var m models.Meeting
	var status string
	err := row.Scan(&m.ID, &m.Title, &m.Purpose, &m.DurationMinutes, &m.OrganizerID, &m.ResponseDeadline, &status,
		&m.FinalizedStartTime, &m.Venue, &m.MeetingLink, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Status = models.MeetingStatus(status)
	return &m, nil
}

func (q *queries) listMeetings(ctx context.Context, sql string, args ...any) ([]models.Meeting, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

// InsertMeeting inserts a meeting row with a caller-assigned id.
func (q *queries) InsertMeeting(ctx context.Context, m *models.Meeting) error {
	const sql = `INSERT INTO meetings (id, title, purpose, duration_minutes, organizer_id, response_deadline, status,
		finalized_start_time, venue, meeting_link, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := q.db.Exec(ctx, sql, m.ID, m.Title, m.Purpose, m.DurationMinutes, m.OrganizerID, m.ResponseDeadline, string(m.Status),
		m.FinalizedStartTime, m.Venue, m.MeetingLink, m.CreatedAt, m.UpdatedAt)
	return err
}

// GetMeeting returns a meeting by id.
func (q *queries) GetMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	m, err := scanMeeting(q.db.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// LockMeeting returns a meeting by id holding a row lock until the transaction ends.
func (q *queries) LockMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	m, err := scanMeeting(q.db.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// UpdateMeeting writes the mutable columns of a meeting.
func (q *queries) UpdateMeeting(ctx context.Context, m *models.Meeting) error {
	const sql = `UPDATE meetings SET status = $1, finalized_start_time = $2, venue = $3, meeting_link = $4, updated_at = $5
		WHERE id = $6`
	tag, err := q.db.Exec(ctx, sql, string(m.Status), m.FinalizedStartTime, m.Venue, m.MeetingLink, m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListMeetingsByOrganizer returns meetings organized by the user, newest first.
func (q *queries) ListMeetingsByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]models.Meeting, error) {
	return q.listMeetings(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE organizer_id = $1 ORDER BY created_at DESC`, organizerID)
}

// ListMeetingsByParticipant returns meetings the user was invited to, newest first.
func (q *queries) ListMeetingsByParticipant(ctx context.Context, userID uuid.UUID) ([]models.Meeting, error) {
	const sql = `SELECT m.id, m.title, m.purpose, m.duration_minutes, m.organizer_id, m.response_deadline, m.status,
		m.finalized_start_time, m.venue, m.meeting_link, m.created_at, m.updated_at
		FROM meetings m JOIN meeting_participants p ON p.meeting_id = m.id
		WHERE p.user_id = $1 ORDER BY m.created_at DESC`
	return q.listMeetings(ctx, sql, userID)
}

// AddParticipants inserts participants, ignoring ones already invited.
func (q *queries) AddParticipants(ctx context.Context, participants []models.Participant) ([]models.Participant, error) {
	const sql = `INSERT INTO meeting_participants (meeting_id, user_id, invited_at) VALUES ($1, $2, $3)
		ON CONFLICT (meeting_id, user_id) DO NOTHING
		RETURNING meeting_id, user_id, invited_at`
	var added []models.Participant
	for _, p := range participants {
		var row models.Participant
		err := q.db.QueryRow(ctx, sql, p.MeetingID, p.UserID, p.InvitedAt).Scan(&row.MeetingID, &row.UserID, &row.InvitedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		added = append(added, row)
	}
	return added, nil
}

// ListParticipants returns a meeting's participants in invitation order.
func (q *queries) ListParticipants(ctx context.Context, meetingID uuid.UUID) ([]models.Participant, error) {
	rows, err := q.db.Query(ctx, `SELECT meeting_id, user_id, invited_at FROM meeting_participants
		WHERE meeting_id = $1 ORDER BY invited_at, user_id`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.MeetingID, &p.UserID, &p.InvitedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// GetParticipant returns one membership row.
func (q *queries) GetParticipant(ctx context.Context, meetingID, userID uuid.UUID) (*models.Participant, error) {
	var p models.Participant
	err := q.db.QueryRow(ctx, `SELECT meeting_id, user_id, invited_at FROM meeting_participants
		WHERE meeting_id = $1 AND user_id = $2`, meetingID, userID).Scan(&p.MeetingID, &p.UserID, &p.InvitedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// InsertTimeSlots inserts candidate slots.
func (q *queries) InsertTimeSlots(ctx context.Context, slots []models.TimeSlot) error {
	const sql = `INSERT INTO meeting_time_slots (id, meeting_id, start_time, end_time) VALUES ($1, $2, $3, $4)`
	for _, s := range slots {
		if _, err := q.db.Exec(ctx, sql, s.ID, s.MeetingID, s.StartTime, s.EndTime); err != nil {
			return err
		}
	}
	return nil
}

// ListTimeSlots returns a meeting's slots ordered by start time.
func (q *queries) ListTimeSlots(ctx context.Context, meetingID uuid.UUID) ([]models.TimeSlot, error) {
	rows, err := q.db.Query(ctx, `SELECT id, meeting_id, start_time, end_time FROM meeting_time_slots
		WHERE meeting_id = $1 ORDER BY start_time, id`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.TimeSlot
	for rows.Next() {
		var s models.TimeSlot
		if err := rows.Scan(&s.ID, &s.MeetingID, &s.StartTime, &s.EndTime); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// UpsertAvailability writes availability rows; the latest write for a (slot, participant) wins.
func (q *queries) UpsertAvailability(ctx context.Context, rows []models.Availability) error {
	const sql = `INSERT INTO meeting_availability (time_slot_id, participant_id, status, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (time_slot_id, participant_id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`
	for _, a := range rows {
		if _, err := q.db.Exec(ctx, sql, a.TimeSlotID, a.ParticipantID, string(a.Status), a.UpdatedAt); err != nil {
			return err
		}
	}
	return nil
}

// ListAvailability returns every availability row for a meeting's slots.
func (q *queries) ListAvailability(ctx context.Context, meetingID uuid.UUID) ([]models.Availability, error) {
	const sql = `SELECT a.time_slot_id, a.participant_id, a.status, a.updated_at
		FROM meeting_availability a JOIN meeting_time_slots s ON s.id = a.time_slot_id
		WHERE s.meeting_id = $1 ORDER BY s.start_time, a.participant_id`
	rows, err := q.db.Query(ctx, sql, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Availability
	for rows.Next() {
		var a models.Availability
		var status string
		if err := rows.Scan(&a.TimeSlotID, &a.ParticipantID, &status, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Status = models.AvailabilityStatus(status)
		list = append(list, a)
	}
	return list, rows.Err()
}

// InsertFinalizedSlot appends a finalization record.
func (q *queries) InsertFinalizedSlot(ctx context.Context, fs *models.FinalizedSlot) error {
	const sql = `INSERT INTO meeting_finalized_slots (id, meeting_id, time_slot_id, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := q.db.Exec(ctx, sql, fs.ID, fs.MeetingID, fs.TimeSlotID, fs.StartTime, fs.EndTime, fs.CreatedAt)
	return err
}

// ListFinalizedSlots returns a meeting's finalization history, oldest first.
func (q *queries) ListFinalizedSlots(ctx context.Context, meetingID uuid.UUID) ([]models.FinalizedSlot, error) {
	rows, err := q.db.Query(ctx, `SELECT id, meeting_id, time_slot_id, start_time, end_time, created_at
		FROM meeting_finalized_slots WHERE meeting_id = $1 ORDER BY created_at, id`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.FinalizedSlot
	for rows.Next() {
		var fs models.FinalizedSlot
		if err := rows.Scan(&fs.ID, &fs.MeetingID, &fs.TimeSlotID, &fs.StartTime, &fs.EndTime, &fs.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, fs)
	}
	return list, rows.Err()
}
