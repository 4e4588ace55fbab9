package mail

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
	"github.com/aura-erp/meeting-scheduler/internal/store/bolt"
	"github.com/aura-erp/meeting-scheduler/pkg/queue"
)

func newTestSMTPSender(t *testing.T, cfg SMTPConfig) *SMTPSender {
	t.Helper()
	s, err := NewSMTPSender(cfg)
	require.NoError(t, err)
	return s
}

func TestSMTPSenderRendersMessage(t *testing.T) {
	s := newTestSMTPSender(t, SMTPConfig{Host: "smtp.local", Port: 2525, User: "u", Pass: "p", FromAddress: "noreply@example.com", FromName: "Scheduler"})
	var rendered bytes.Buffer
	s.deliver = func(_ context.Context, m *gomail.Msg) error {
		_, err := m.WriteTo(&rendered)
		return err
	}

	err := s.Send(context.Background(), Message{To: "ana@example.com", Subject: "Hi\r\nBcc: evil@example.com", Body: "line1\nline2"})
	require.NoError(t, err)

	body := rendered.String()
	assert.Regexp(t, `From: "?Scheduler"? <noreply@example.com>`, body)
	assert.Contains(t, body, "ana@example.com")
	assert.Contains(t, body, "Subject: Hi  Bcc: evil@example.com")
	assert.NotContains(t, body, "\r\nBcc:")
	assert.Contains(t, body, "line1")
	assert.Contains(t, body, "line2")
}

func TestSMTPSenderRejectsBadRecipient(t *testing.T) {
	s := newTestSMTPSender(t, SMTPConfig{Host: "smtp.local", FromAddress: "noreply@example.com"})
	called := false
	s.deliver = func(context.Context, *gomail.Msg) error {
		called = true
		return nil
	}
	err := s.Send(context.Background(), Message{To: "not an address\r\nBcc: x@example.com"})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestSMTPSenderWrapsError(t *testing.T) {
	s := newTestSMTPSender(t, SMTPConfig{Host: "smtp.local", Port: 25, FromAddress: "noreply@example.com"})
	s.deliver = func(context.Context, *gomail.Msg) error { return errors.New("refused") }
	err := s.Send(context.Background(), Message{To: "a@example.com"})
	assert.ErrorContains(t, err, "a@example.com")
	assert.ErrorContains(t, err, "refused")
}

func TestSMTPSenderStopsOnContextCancel(t *testing.T) {
	s := newTestSMTPSender(t, SMTPConfig{Host: "smtp.local", FromAddress: "noreply@example.com"})
	// A relay that accepts the connection and never answers.
	s.deliver = func(ctx context.Context, _ *gomail.Msg) error {
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Send(ctx, Message{To: "a@example.com"}) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return after the context expired")
	}
}

func TestNewSMTPSenderDefaultsTimeout(t *testing.T) {
	s := newTestSMTPSender(t, SMTPConfig{Host: "smtp.local"})
	assert.Equal(t, defaultSMTPTimeout, s.cfg.Timeout)
	s = newTestSMTPSender(t, SMTPConfig{Host: "smtp.local", Timeout: time.Second})
	assert.Equal(t, time.Second, s.cfg.Timeout)
}

func TestNewSenderFallsBackToLog(t *testing.T) {
	s, err := NewSender(SMTPConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	s, err = NewSender(SMTPConfig{Host: "smtp.local"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SMTPSender{}, s)
}

type stubEnqueuer struct {
	payloads []queue.EmailPayload
	failTo   string
}

func (e *stubEnqueuer) EnqueueEmail(_ context.Context, p queue.EmailPayload) error {
	if p.RecipientEmail == e.failTo {
		return errors.New("redis down")
	}
	e.payloads = append(e.payloads, p)
	return nil
}

func TestSendBulkLogsAndEnqueues(t *testing.T) {
	st, err := bolt.Open(filepath.Join(t.TempDir(), "mail.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	enq := &stubEnqueuer{failTo: "bad@example.com"}
	d := NewQueueDispatcher(st, enq, nil)
	ctx := context.Background()
	meetingID := uuid.New()

	err = d.SendBulk(ctx, []Message{
		{To: "ana@example.com", Subject: "Invite", Body: "b", EmailType: models.EmailTypeInvitation, MeetingID: &meetingID},
		{To: "bad@example.com", Subject: "Invite", Body: "b", EmailType: models.EmailTypeInvitation, MeetingID: &meetingID},
	})
	assert.ErrorContains(t, err, "enqueue email")

	require.Len(t, enq.payloads, 1)
	assert.Equal(t, "ana@example.com", enq.payloads[0].RecipientEmail)

	var logs []models.EmailLog
	require.NoError(t, st.View(ctx, func(q store.Queries) error {
		var err error
		logs, err = q.ListEmailLogsByMeeting(ctx, meetingID)
		return err
	}))
	require.Len(t, logs, 2)
	status := map[string]string{}
	ids := map[string]uuid.UUID{}
	for _, l := range logs {
		status[l.RecipientEmail] = l.Status
		ids[l.RecipientEmail] = l.ID
	}
	assert.Equal(t, models.EmailLogStatusPending, status["ana@example.com"])
	assert.Equal(t, models.EmailLogStatusFailed, status["bad@example.com"])
	assert.Equal(t, ids["ana@example.com"], enq.payloads[0].EmailLogID)
}

func openMailStore(t *testing.T) store.Store {
	t.Helper()
	st, err := bolt.Open(filepath.Join(t.TempDir(), "mail.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSendBulkRecordsUnknownRecipient(t *testing.T) {
	st := openMailStore(t)
	enq := &stubEnqueuer{}
	core, logs := observer.New(zap.WarnLevel)
	d := NewQueueDispatcher(st, enq, zap.New(core))
	ctx := context.Background()
	meetingID := uuid.New()
	userID := uuid.New()

	err := d.SendBulk(ctx, []Message{
		{To: "ana@example.com", Subject: "Invite", EmailType: models.EmailTypeInvitation, MeetingID: &meetingID},
		{Subject: "Invite", EmailType: models.EmailTypeInvitation, MeetingID: &meetingID, RecipientID: &userID},
	})
	assert.ErrorIs(t, err, ErrRecipientUnknown)
	require.Len(t, enq.payloads, 1)
	assert.Equal(t, "ana@example.com", enq.payloads[0].RecipientEmail)

	var entries []models.EmailLog
	require.NoError(t, st.View(ctx, func(q store.Queries) error {
		var err error
		entries, err = q.ListEmailLogsByMeeting(ctx, meetingID)
		return err
	}))
	require.Len(t, entries, 2)
	var unknown *models.EmailLog
	for i := range entries {
		if entries[i].RecipientEmail == "" {
			unknown = &entries[i]
		}
	}
	require.NotNil(t, unknown)
	assert.Equal(t, models.EmailLogStatusFailed, unknown.Status)
	assert.Equal(t, "recipient unknown", unknown.ErrorMessage)
	require.NotNil(t, unknown.RecipientID)
	assert.Equal(t, userID, *unknown.RecipientID)

	warned := logs.FilterMessage("email dispatch failed").All()
	require.Len(t, warned, 1)
	assert.Equal(t, userID.String(), warned[0].ContextMap()["user_id"])
}

// flakyStore fails every Update after the first n.
type flakyStore struct {
	store.Store
	okUpdates int
	calls     int
}

func (s *flakyStore) Update(ctx context.Context, fn func(q store.Queries) error) error {
	s.calls++
	if s.calls > s.okUpdates {
		return errors.New("store unavailable")
	}
	return s.Store.Update(ctx, fn)
}

func TestSendBulkLogsFailedStatusUpdate(t *testing.T) {
	st := &flakyStore{Store: openMailStore(t), okUpdates: 1}
	core, logs := observer.New(zap.WarnLevel)
	d := NewQueueDispatcher(st, &stubEnqueuer{failTo: "bad@example.com"}, zap.New(core))

	err := d.SendBulk(context.Background(), []Message{{To: "bad@example.com", EmailType: models.EmailTypeInvitation}})
	assert.ErrorContains(t, err, "enqueue email")

	marked := logs.FilterMessage("mark email log failed").All()
	require.Len(t, marked, 1)
	assert.NotEmpty(t, marked[0].ContextMap()["email_log_id"])
	assert.Equal(t, "store unavailable", marked[0].ContextMap()["error"])
}
