// Package email delivers transactional mail (account verification) through
// Resend, SMTP, or a log-only sender for local development.
package email

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"paperpedia/api/internal/config"
)

var ErrNotConfigured = errors.New("email not configured")

// Sender delivers a single HTML message.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NewSender picks a backend from configuration: Resend when an API key is
// set, SMTP when a host is set, otherwise a LogSender. The second result
// reports whether mail actually leaves the process.
func NewSender(cfg config.Config, log logrus.FieldLogger) (Sender, bool) {
	if !cfg.MailConfigured() {
		return NewLogSender(log), false
	}
	if cfg.ResendAPIKey != "" {
		return NewResendSender(cfg.ResendAPIKey, formatFrom(cfg.MailFromName, cfg.MailFrom)), true
	}
	return NewSMTPSender(SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		FromName: cfg.MailFromName,
	}), true
}

func formatFrom(name, address string) string {
	if name == "" {
		return address
	}
	return headerSafe(name) + " <" + address + ">"
}

// headerSafe strips CR and LF so values cannot inject extra headers.
func headerSafe(value string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(value)
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	log logrus.FieldLogger
}

func NewLogSender(log logrus.FieldLogger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, to, subject, htmlBody string) error {
	s.log.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
		"bytes":   len(htmlBody),
	}).Info("email delivery disabled; message not sent")
	return nil
}
