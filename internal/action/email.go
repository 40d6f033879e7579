package action

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/flowline-core/internal/automation"
)

// Email is a rendered message ready for delivery.
type Email struct {
	To      []string
	Subject string
	Body    string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// EmailHandler sends email actions through a Mailer.
type EmailHandler struct {
	mailer Mailer
}

// NewEmailHandler creates an email handler.
func NewEmailHandler(mailer Mailer) *EmailHandler {
	return &EmailHandler{mailer: mailer}
}

// Execute implements automation.ActionHandler.
//
// Config keys: to (string, comma-separated, or list), subject, body.
func (h *EmailHandler) Execute(ctx context.Context, action automation.Action, execCtx map[string]any) (automation.Result, error) {
	if h.mailer == nil {
		return nil, fmt.Errorf("%w: mailer", ErrNotConfigured)
	}

	to := configStrings(action, "to", execCtx)
	if len(to) == 0 {
		return nil, fmt.Errorf("%w: to", ErrMissingConfig)
	}
	subject := configString(action, "subject", execCtx)
	body := configString(action, "body", execCtx)

	if err := h.mailer.Send(ctx, Email{To: to, Subject: subject, Body: body}); err != nil {
		return nil, fmt.Errorf("sending email: %w", err)
	}

	return automation.Success(map[string]any{
		"to":      to,
		"subject": subject,
	}), nil
}

// ─── SMTP ──────────────────────────────────────────────────────────

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers email through an SMTP relay.
type SMTPMailer struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now      func() time.Time
}

// NewSMTPMailer creates an SMTP mailer.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, sendMail: smtp.SendMail, now: time.Now}
}

// Send implements Mailer. net/smtp has no context support, so ctx is only
// checked before dialling.
func (m *SMTPMailer) Send(ctx context.Context, msg Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.cfg.Host == "" || m.cfg.From == "" {
		return fmt.Errorf("%w: smtp host and from address", ErrNotConfigured)
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	return m.sendMail(addr, auth, m.cfg.From, msg.To, m.compose(msg))
}

func (m *SMTPMailer) compose(msg Email) []byte {
	var b strings.Builder
	b.WriteString("From: " + m.cfg.From + "\r\n")
	b.WriteString("To: " + strings.Join(msg.To, ", ") + "\r\n")
	b.WriteString("Subject: " + sanitiseHeader(msg.Subject) + "\r\n")
	b.WriteString("Date: " + m.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// sanitiseHeader strips CR/LF so rendered subjects cannot inject headers.
func sanitiseHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
