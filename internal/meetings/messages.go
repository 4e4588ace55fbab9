package meetings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-erp/meeting-scheduler/internal/mail"
	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
)

const emailTimeLayout = "Mon, 02 Jan 2006 15:04 MST"

// emailUsers resolves addresses through the directory and hands the messages to the mailer.
// A user without an address still gets a message with an empty To, which the mailer records as failed.
func (s *Service) emailUsers(ctx context.Context, meetingID uuid.UUID, emailType string, userIDs []uuid.UUID, subject, body string) {
	if s.mailer == nil || len(userIDs) == 0 {
		return
	}
	addrs, err := s.dir.ResolveEmails(ctx, userIDs)
	if err != nil {
		s.logger.Warn("resolve email recipients failed", zap.String("meeting_id", meetingID.String()), zap.Error(err))
		addrs = nil
	}

	mid := meetingID
	msgs := make([]mail.Message, 0, len(userIDs))
	for _, id := range userIDs {
		id := id
		addr := addrs[id]
		if addr == "" {
			s.logger.Warn("no email address for recipient",
				zap.String("meeting_id", meetingID.String()),
				zap.String("user_id", id.String()),
				zap.String("email_type", emailType),
			)
		}
		msgs = append(msgs, mail.Message{
			To:          addr,
			Subject:     subject,
			Body:        body,
			EmailType:   emailType,
			MeetingID:   &mid,
			RecipientID: &id,
		})
	}
	if err := s.mailer.SendBulk(ctx, msgs); err != nil {
		s.logger.Warn("send emails failed",
			zap.String("meeting_id", meetingID.String()),
			zap.String("email_type", emailType),
			zap.Error(err),
		)
	}
}

// storeDirectory reads addresses from the mirrored users table.
type storeDirectory struct {
	store store.Store
}

func (d storeDirectory) ResolveEmails(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(ids))
	err := d.store.View(ctx, func(q store.Queries) error {
		users, err := q.GetUsers(ctx, ids)
		if err != nil {
			return err
		}
		for id, u := range users {
			if u.Email != "" {
				out[id] = u.Email
			}
		}
		return nil
	})
	return out, err
}

func invitationEmailBody(m *models.Meeting, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You have been invited to %q.\n\n", m.Title)
	if m.Purpose != "" {
		fmt.Fprintf(&b, "Purpose: %s\n", m.Purpose)
	}
	fmt.Fprintf(&b, "Duration: %d minutes\n", m.DurationMinutes)
	fmt.Fprintf(&b, "Please mark your availability by %s.\n\n", m.ResponseDeadline.Format(emailTimeLayout))
	fmt.Fprintf(&b, "%s\n", link)
	return b.String()
}

func finalizedContent(m *models.Meeting, slot models.TimeSlot) string {
	content := fmt.Sprintf("%q will take place on %s.", m.Title, slot.StartTime.Format(emailTimeLayout))
	if m.Venue != nil {
		content += " Venue: " + *m.Venue + "."
	}
	return content
}

func finalizedEmailBody(m *models.Meeting, slot models.TimeSlot, link, calendarURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The meeting %q has been scheduled.\n\n", m.Title)
	fmt.Fprintf(&b, "Starts: %s\n", slot.StartTime.Format(emailTimeLayout))
	fmt.Fprintf(&b, "Ends:   %s\n", slot.EndTime.Format(emailTimeLayout))
	if m.Venue != nil {
		fmt.Fprintf(&b, "Venue:  %s\n", *m.Venue)
	}
	if m.MeetingLink != nil {
		fmt.Fprintf(&b, "Join:   %s\n", *m.MeetingLink)
	}
	if calendarURL != "" {
		fmt.Fprintf(&b, "\nAdd to calendar: %s\n", calendarURL)
	}
	fmt.Fprintf(&b, "\n%s\n", link)
	return b.String()
}

func reminderContent(m *models.Meeting) string {
	if m.FinalizedStartTime == nil {
		return fmt.Sprintf("%q is coming up.", m.Title)
	}
	content := fmt.Sprintf("%q starts at %s.", m.Title, m.FinalizedStartTime.Format(emailTimeLayout))
	if m.MeetingLink != nil {
		content += " Join: " + *m.MeetingLink
	}
	return content
}

func deadlineContent(m *models.Meeting, responded, invited int) string {
	return fmt.Sprintf("Responses for %q were due %s. %d of %d participants responded; pick a time slot to finalize.",
		m.Title, m.ResponseDeadline.Format(time.RFC1123), responded, invited)
}
