package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
)

func (q *queries) InsertMeeting(_ context.Context, m *models.Meeting) error {
	b := q.tx.Bucket(bucketMeetings)
	key := []byte(m.ID.String())
	if b.Get(key) != nil {
		return fmt.Errorf("meeting %s already exists", m.ID)
	}
	return putJSON(b, key, m)
}

func (q *queries) GetMeeting(_ context.Context, id uuid.UUID) (*models.Meeting, error) {
	var m models.Meeting
	ok, err := getJSON(q.tx.Bucket(bucketMeetings), []byte(id.String()), &m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

// LockMeeting is a plain read: bbolt allows a single writer at a time.
func (q *queries) LockMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	return q.GetMeeting(ctx, id)
}

func (q *queries) UpdateMeeting(_ context.Context, m *models.Meeting) error {
	b := q.tx.Bucket(bucketMeetings)
	key := []byte(m.ID.String())
	if b.Get(key) == nil {
		return store.ErrNotFound
	}
	return putJSON(b, key, m)
}

func (q *queries) ListMeetingsByOrganizer(_ context.Context, organizerID uuid.UUID) ([]models.Meeting, error) {
	var list []models.Meeting
	err := q.tx.Bucket(bucketMeetings).ForEach(func(k, v []byte) error {
		var m models.Meeting
		if err := json.Unmarshal(v, &m); err != nil {
			return fmt.Errorf("unmarshaling meeting %s: %w", k, err)
		}
		if m.OrganizerID == organizerID {
			list = append(list, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortMeetings(list)
	return list, nil
}

func (q *queries) ListMeetingsByParticipant(ctx context.Context, userID uuid.UUID) ([]models.Meeting, error) {
	var ids []uuid.UUID
	err := q.tx.Bucket(bucketParticipants).ForEach(func(k, v []byte) error {
		var p models.Participant
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("unmarshaling participant %s: %w", k, err)
		}
		if p.UserID == userID {
			ids = append(ids, p.MeetingID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	list := make([]models.Meeting, 0, len(ids))
	for _, id := range ids {
		m, err := q.GetMeeting(ctx, id)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	sortMeetings(list)
	return list, nil
}

func sortMeetings(list []models.Meeting) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
}

func (q *queries) AddParticipants(_ context.Context, participants []models.Participant) ([]models.Participant, error) {
	b := q.tx.Bucket(bucketParticipants)
	var added []models.Participant
	for _, p := range participants {
		key := compositeKey(p.MeetingID.String(), p.UserID.String())
		if b.Get(key) != nil {
			continue
		}
		if err := putJSON(b, key, p); err != nil {
			return nil, err
		}
		added = append(added, p)
	}
	return added, nil
}

func (q *queries) ListParticipants(_ context.Context, meetingID uuid.UUID) ([]models.Participant, error) {
	var list []models.Participant
	err := scanPrefix(q.tx.Bucket(bucketParticipants), compositeKey(meetingID.String(), ""), func(k, v []byte) error {
		var p models.Participant
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("unmarshaling participant %s: %w", k, err)
		}
		list = append(list, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].InvitedAt.Equal(list[j].InvitedAt) {
			return list[i].UserID.String() < list[j].UserID.String()
		}
		return list[i].InvitedAt.Before(list[j].InvitedAt)
	})
	return list, nil
}

func (q *queries) GetParticipant(_ context.Context, meetingID, userID uuid.UUID) (*models.Participant, error) {
	var p models.Participant
	ok, err := getJSON(q.tx.Bucket(bucketParticipants), compositeKey(meetingID.String(), userID.String()), &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (q *queries) InsertTimeSlots(_ context.Context, slots []models.TimeSlot) error {
	b := q.tx.Bucket(bucketSlots)
	for _, s := range slots {
		if err := putJSON(b, compositeKey(s.MeetingID.String(), s.ID.String()), s); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) ListTimeSlots(_ context.Context, meetingID uuid.UUID) ([]models.TimeSlot, error) {
	var list []models.TimeSlot
	err := scanPrefix(q.tx.Bucket(bucketSlots), compositeKey(meetingID.String(), ""), func(k, v []byte) error {
		var s models.TimeSlot
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("unmarshaling slot %s: %w", k, err)
		}
		list = append(list, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime) })
	return list, nil
}

func (q *queries) UpsertAvailability(_ context.Context, rows []models.Availability) error {
	b := q.tx.Bucket(bucketAvailability)
	for _, a := range rows {
		if err := putJSON(b, compositeKey(a.TimeSlotID.String(), a.ParticipantID.String()), a); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) ListAvailability(ctx context.Context, meetingID uuid.UUID) ([]models.Availability, error) {
	slots, err := q.ListTimeSlots(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	b := q.tx.Bucket(bucketAvailability)
	var list []models.Availability
	for _, s := range slots {
		err := scanPrefix(b, compositeKey(s.ID.String(), ""), func(k, v []byte) error {
			var a models.Availability
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("unmarshaling availability %s: %w", k, err)
			}
			list = append(list, a)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (q *queries) InsertFinalizedSlot(_ context.Context, fs *models.FinalizedSlot) error {
	return putJSON(q.tx.Bucket(bucketFinalized), compositeKey(fs.MeetingID.String(), fs.ID.String()), fs)
}

func (q *queries) ListFinalizedSlots(_ context.Context, meetingID uuid.UUID) ([]models.FinalizedSlot, error) {
	var list []models.FinalizedSlot
	err := scanPrefix(q.tx.Bucket(bucketFinalized), compositeKey(meetingID.String(), ""), func(k, v []byte) error {
		var fs models.FinalizedSlot
		if err := json.Unmarshal(v, &fs); err != nil {
			return fmt.Errorf("unmarshaling finalized slot %s: %w", k, err)
		}
		list = append(list, fs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}
