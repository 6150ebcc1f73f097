// Package mail renders templated admin emails and delivers them over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/valyala/fasttemplate"
	"gopkg.in/gomail.v2"
)

// Template tags, as in "<%= user.firstname %>".
const (
	StartTag = "<%="
	EndTag   = "%>"
)

// Envelope addresses one message. Empty From or ReplyTo fall back to the
// sender defaults.
type Envelope struct {
	To      string
	From    string
	ReplyTo string
}

// Template holds the unrendered subject and bodies.
type Template struct {
	Subject string
	Text    string
	HTML    string
}

// Sender delivers templated messages.
type Sender interface {
	SendTemplatedEmail(ctx context.Context, env Envelope, tpl Template, data map[string]any) error
}

// Render substitutes tags in tpl with values from data. Dotted tags walk
// nested maps; unknown tags render as the empty string.
func Render(tpl string, data map[string]any) (string, error) {
	t, err := fasttemplate.NewTemplate(tpl, StartTag, EndTag)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	return t.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		v, ok := lookup(data, strings.TrimSpace(tag))
		if !ok || v == nil {
			return 0, nil
		}
		return fmt.Fprint(w, v)
	})
}

func lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Rendered is a Template after substitution.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

// RenderTemplate renders every part of tpl.
func RenderTemplate(tpl Template, data map[string]any) (Rendered, error) {
	var r Rendered
	var err error
	if r.Subject, err = Render(tpl.Subject, data); err != nil {
		return r, err
	}
	if r.Text, err = Render(tpl.Text, data); err != nil {
		return r, err
	}
	if r.HTML, err = Render(tpl.HTML, data); err != nil {
		return r, err
	}
	return r, nil
}

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers messages through an SMTP server.
type SMTPSender struct {
	dialer  Dialer
	from    string
	replyTo string
}

// NewSMTPSender creates a sender for host:port with optional credentials.
func NewSMTPSender(host string, port int, username, password, from, replyTo string) *SMTPSender {
	return &SMTPSender{
		dialer:  gomail.NewDialer(host, port, username, password),
		from:    from,
		replyTo: replyTo,
	}
}

// NewSMTPSenderWithDialer is NewSMTPSender with an explicit dialer.
func NewSMTPSenderWithDialer(d Dialer, from, replyTo string) *SMTPSender {
	return &SMTPSender{dialer: d, from: from, replyTo: replyTo}
}

// SendTemplatedEmail renders tpl with data and sends it.
func (s *SMTPSender) SendTemplatedEmail(ctx context.Context, env Envelope, tpl Template, data map[string]any) error {
	if env.To == "" {
		return errors.New("no recipient found")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r, err := RenderTemplate(tpl, data)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", firstNonEmpty(env.From, s.from))
	msg.SetHeader("To", env.To)
	if replyTo := firstNonEmpty(env.ReplyTo, s.replyTo); replyTo != "" {
		msg.SetHeader("Reply-To", replyTo)
	}
	msg.SetHeader("Subject", r.Subject)

	switch {
	case r.Text != "" && r.HTML != "":
		msg.SetBody("text/plain", r.Text)
		msg.AddAlternative("text/html", r.HTML)
	case r.HTML != "":
		msg.SetBody("text/html", r.HTML)
	default:
		msg.SetBody("text/plain", r.Text)
	}

	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// LogSender logs rendered messages instead of sending them. Used when no
// SMTP server is configured.
type LogSender struct {
	Logger *slog.Logger
}

// SendTemplatedEmail renders tpl and logs the envelope and subject.
func (s LogSender) SendTemplatedEmail(_ context.Context, env Envelope, tpl Template, data map[string]any) error {
	r, err := RenderTemplate(tpl, data)
	if err != nil {
		return err
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email not sent, no SMTP server configured", "to", env.To, "subject", r.Subject)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
