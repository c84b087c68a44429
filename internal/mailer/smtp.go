package mailer

import (
	"context"

	mail "github.com/wneessen/go-mail"

	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/pkg/util"
)

// Mailer delivers a plain-text message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends over SMTP with STARTTLS. A fresh client is dialed per
// send and released on every exit path.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer creates the mailer.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send composes and delivers one message.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return util.NewAdapterError("set mail sender", err)
	}
	if err := msg.To(to); err != nil {
		return util.NewAdapterError("set mail recipient", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return util.NewAdapterError("build smtp client", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return util.NewAdapterError("send mail", err)
	}
	return nil
}
