package mailer

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/storefrontlabs/storefront-backend/pkg/config"
	"github.com/storefrontlabs/storefront-backend/pkg/logger"
)

// Sender delivers transactional mail (confirmation and reset PINs).
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender delivers mail through a plain SMTP relay.
type SMTPSender struct {
	cfg config.SMTPConfig
}

// NewSMTPSender builds a sender from the SMTP configuration.
func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.DefaultFrom == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send delivers a single plain-text message.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", s.cfg.DefaultFrom, to, subject, body)
	if err := smtp.SendMail(addr, auth, s.cfg.DefaultFrom, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}

// LogSender writes messages to the application log instead of delivering them.
// Used in dev when no SMTP relay is configured.
type LogSender struct {
	logg *logger.Logger
}

// NewLogSender builds the log-backed sender.
func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

// Send records the message in the log.
func (l *LogSender) Send(ctx context.Context, to, subject, body string) error {
	if l.logg == nil {
		return nil
	}
	ctx = l.logg.WithFields(ctx, map[string]any{
		"to":      to,
		"subject": subject,
	})
	l.logg.Info(ctx, "mail delivery skipped, logging instead")
	return nil
}

// FromConfig picks the SMTP sender when configured and falls back to the log sender.
func FromConfig(cfg config.SMTPConfig, logg *logger.Logger) Sender {
	if cfg.Host == "" {
		return NewLogSender(logg)
	}
	sender, err := NewSMTPSender(cfg)
	if err != nil {
		return NewLogSender(logg)
	}
	return sender
}
