// Package mailer delivers password reset links.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"
)

var (
	_ Mailer = (*LogMailer)(nil)
	_ Mailer = (*SMTPMailer)(nil)
)

type Mailer interface {
	SendPasswordReset(ctx context.Context, to, resetLink string) error
}

// LogMailer writes reset links to the log. Development only: the link is a
// live credential.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, to, resetLink string) error {
	m.logger.InfoContext(ctx, "Password reset email (log driver)",
		slog.String("to", to),
		slog.String("link", resetLink),
	)
	return nil
}

type SMTPConfig struct {
	From     string
	Host     string
	Port     string
	Username string
	Password string
}

// SMTPMailer sends reset links over SMTP, upgrading to TLS when the server
// offers STARTTLS.
type SMTPMailer struct {
	from   string
	logger *slog.Logger
	send   func(ctx context.Context, msgs ...*mail.Msg) error
}

func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) (*SMTPMailer, error) {
	if err := mail.NewMsg().From(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", cfg.From, err)
	}
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP port %q: %w", cfg.Port, err)
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(10 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return &SMTPMailer{from: cfg.From, logger: logger, send: client.DialAndSendWithContext}, nil
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, resetLink string) error {
	msg, err := buildResetMessage(m.from, to, resetLink, time.Now())
	if err != nil {
		return err
	}
	if err := m.send(ctx, msg); err != nil {
		m.logger.ErrorContext(ctx, "Failed to send password reset email", slog.Any("error", err))
		return fmt.Errorf("send reset email: %w", err)
	}
	m.logger.InfoContext(ctx, "Password reset email sent")
	return nil
}

const resetBody = `Someone asked to reset the password of your account.

Open this link within the next hour to choose a new password:
%s

If it was not you, ignore this email.
`

func buildResetMessage(from, to, link string, now time.Time) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject("Reset your password")
	msg.SetDateWithValue(now)
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(resetBody, link))
	return msg, nil
}
