// Package mailer delivers plain-text notification mail.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Mail is a single plain-text message.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers mail.
type Sender interface {
	Send(ctx context.Context, m Mail) error
}

// Config mirrors the SMTP_* settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// New returns an SMTP sender, or a sender that only logs when no host is set.
func New(cfg Config, log zerolog.Logger) Sender {
	if cfg.Host == "" {
		return LogSender{Log: log}
	}
	return &SMTPSender{cfg: cfg}
}

// SMTPSender sends through an SMTP relay with PLAIN auth when a user is set.
type SMTPSender struct {
	cfg Config
	// send is smtp.SendMail outside tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (s *SMTPSender) Send(ctx context.Context, m Mail) error {
	if err := validate(m); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var a smtp.Auth
	if s.cfg.User != "" {
		a = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}
	send := s.send
	if send == nil {
		send = smtp.SendMail
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := send(addr, a, s.cfg.From, []string{m.To}, Compose(s.cfg.From, m, time.Now())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", m.To, err)
	}
	return nil
}

// LogSender writes mail to the log instead of sending it.
type LogSender struct {
	Log zerolog.Logger
}

func (l LogSender) Send(_ context.Context, m Mail) error {
	if err := validate(m); err != nil {
		return err
	}
	l.Log.Info().Str("to", m.To).Str("subject", m.Subject).Msg("mail (smtp disabled)")
	return nil
}

// Compose renders an RFC 5322 message.
func Compose(from string, m Mail, at time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", at.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(m.Body, "\r\n", "\n"), "\n", "\r\n"))
	return b.Bytes()
}

var errNoRecipient = errors.New("mail has no recipient")

func validate(m Mail) error {
	if strings.TrimSpace(m.To) == "" {
		return errNoRecipient
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return errors.New("mail header contains a line break")
	}
	return nil
}
