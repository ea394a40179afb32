package mailer

import (
	"context"
	"fmt"
	"time"

	"storefront-newsletter/internal/config"

	"github.com/wneessen/go-mail"
)

// Message is one rendered email for one recipient.
type Message struct {
	From     string
	FromName string
	ReplyTo  string
	To       string
	Subject  string
	HTML     string
	Headers  map[string]string
}

// Transport delivers messages. Errors are returned as the provider reports
// them; no retry is attempted.
type Transport interface {
	Send(ctx context.Context, m Message) error
	Name() string
}

// build assembles the MIME message shared by the SMTP and SES transports.
func (m Message) build() (*mail.Msg, error) {
	msg := mail.NewMsg()
	if m.FromName != "" {
		if err := msg.FromFormat(m.FromName, m.From); err != nil {
			return nil, fmt.Errorf("set from: %w", err)
		}
	} else if err := msg.From(m.From); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	if m.ReplyTo != "" {
		if err := msg.ReplyTo(m.ReplyTo); err != nil {
			return nil, fmt.Errorf("set reply-to: %w", err)
		}
	}
	msg.Subject(m.Subject)
	for k, v := range m.Headers {
		msg.SetGenHeader(mail.Header(k), v)
	}
	msg.SetBodyString(mail.TypeTextHTML, m.HTML)
	return msg, nil
}

// New returns the transport selected by cfg.Transport.
func New(ctx context.Context, cfg config.MailConfig) (Transport, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 20 * time.Second
	}
	switch cfg.Transport {
	case "smtp":
		return NewSMTP(cfg.SMTP, timeout)
	case "ses":
		return NewSES(ctx, cfg.SES)
	case "", "log":
		return NewLog(), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
}
