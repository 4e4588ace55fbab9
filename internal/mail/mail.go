// Package mail is the outbound email collaborator: a queue-backed bulk dispatcher and the senders
// the worker delivers through.
package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Message is one outbound email. An empty To means the recipient's address is unknown.
type Message struct {
	To          string
	Subject     string
	Body        string
	EmailType   string
	MeetingID   *uuid.UUID
	RecipientID *uuid.UUID
}

// Sender delivers a single message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host        string
	Port        int
	User        string
	Pass        string
	FromAddress string
	FromName    string
	// Timeout bounds dialing and each SMTP command. Zero means defaultSMTPTimeout.
	Timeout time.Duration
}

const defaultSMTPTimeout = 15 * time.Second

// SMTPSender sends plain-text mail through an SMTP relay.
type SMTPSender struct {
	cfg     SMTPConfig
	deliver func(ctx context.Context, m *gomail.Msg) error
}

// NewSMTPSender creates an SMTP sender. STARTTLS is used when the relay offers it.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	opts := []gomail.Option{
		gomail.WithTimeout(cfg.Timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.User != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.User),
			gomail.WithPassword(cfg.Pass),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client for %s: %w", cfg.Host, err)
	}
	return &SMTPSender{
		cfg: cfg,
		deliver: func(ctx context.Context, m *gomail.Msg) error {
			return client.DialAndSendWithContext(ctx, m)
		},
	}, nil
}

// Send implements Sender. Cancelling ctx aborts the SMTP session.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.compose(msg)
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

func (s *SMTPSender) compose(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	var err error
	if s.cfg.FromName != "" {
		err = m.FromFormat(s.cfg.FromName, s.cfg.FromAddress)
	} else {
		err = m.From(s.cfg.FromAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("from address %q: %w", s.cfg.FromAddress, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("recipient %q: %w", msg.To, err)
	}
	m.Subject(headerSafe(msg.Subject))
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return m, nil
}

func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// NewSender returns an SMTP sender, or a LogSender when no SMTP host is configured.
func NewSender(cfg SMTPConfig, logger *zap.Logger) (Sender, error) {
	if cfg.Host == "" {
		if logger != nil {
			logger.Warn("SMTP_HOST not set; emails are logged, not sent")
		}
		return NewLogSender(logger), nil
	}
	sender, err := NewSMTPSender(cfg)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

// LogSender writes messages to the log instead of delivering them. Used when no SMTP host is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email (log sender)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("email_type", msg.EmailType),
	)
	return nil
}
