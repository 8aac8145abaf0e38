// Package mail sends transactional email over SMTP.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"

	"github.com/aimd54/sistema-donaciones/internal/config"
	prommetrics "github.com/aimd54/sistema-donaciones/internal/metrics"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// Attachment is a file attached to an outgoing message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is an outgoing HTML email.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Dispatcher composes and sends email.
type Dispatcher struct {
	enabled      bool
	from         string
	frontendURL  string
	organization string
	sender       Sender
	log          *logger.Logger
}

// NewDispatcher creates a Dispatcher that delivers through the configured SMTP server.
func NewDispatcher(cfg *config.MailConfig, log *logger.Logger) *Dispatcher {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	return NewDispatcherWithSender(cfg, dialer, log)
}

// NewDispatcherWithSender creates a Dispatcher with a custom Sender (useful for testing).
func NewDispatcherWithSender(cfg *config.MailConfig, sender Sender, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		enabled:      cfg.Enabled,
		from:         cfg.From,
		frontendURL:  cfg.FrontendURL,
		organization: "Sistema de Donaciones",
		sender:       sender,
		log:          log,
	}
}

// SetOrganization sets the name used in subjects and signatures.
func (d *Dispatcher) SetOrganization(name string) {
	if name != "" {
		d.organization = name
	}
}

// Send delivers msg. A disabled dispatcher only logs the message.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("mail: empty recipient")
	}
	if !d.enabled {
		d.log.Debug().
			Str("to", msg.To).
			Str("subject", msg.Subject).
			Msg("Mail is disabled, skipping message")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	for _, a := range msg.Attachments {
		data := a.Data
		m.Attach(a.Filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := io.Copy(w, bytes.NewReader(data))
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}),
		)
	}

	if err := d.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}

	d.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("attachments", len(msg.Attachments)).
		Msg("Mail sent")
	return nil
}

// deliver renders a template, sends it and records the outcome.
func (d *Dispatcher) deliver(ctx context.Context, name, to, subject string, data any, attachments ...Attachment) bool {
	html, err := render(name, d.withDefaults(data))
	if err != nil {
		d.log.Error().Err(err).Str("template", name).Msg("Failed to render mail template")
		prommetrics.RecordMailSent(name, "error")
		return false
	}

	if err := d.Send(ctx, Message{To: to, Subject: subject, HTML: html, Attachments: attachments}); err != nil {
		d.log.Error().Err(err).Str("template", name).Str("to", to).Msg("Failed to send mail")
		prommetrics.RecordMailSent(name, "error")
		return false
	}

	status := "success"
	if !d.enabled {
		status = "skipped"
	}
	prommetrics.RecordMailSent(name, status)
	return true
}

type layoutData struct {
	Organization string
	FrontendURL  string
	Body         any
}

func (d *Dispatcher) withDefaults(body any) layoutData {
	return layoutData{Organization: d.organization, FrontendURL: d.frontendURL, Body: body}
}
