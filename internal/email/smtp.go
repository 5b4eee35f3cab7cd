// Package email sends account notices over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const smtpTimeout = 30 * time.Second

// Ports where a plaintext session is tolerated: the classic relay port and
// the usual local mail catcher.
var insecurePorts = map[int]bool{25: true, 1025: true}

type SMTPService struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewSMTPService(host string, port int, username, password, from string) *SMTPService {
	return &SMTPService{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// SendPasswordChanged tells the account owner their password was changed
// and other sessions were signed out.
func (s *SMTPService) SendPasswordChanged(to, username string, changedAt time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), smtpTimeout)
	defer cancel()
	return s.send(ctx, to, "Your vidtube password was changed", passwordChangedBody(username, changedAt))
}

func passwordChangedBody(username string, changedAt time.Time) string {
	return fmt.Sprintf(`Hello %s,

The password for your vidtube account was changed on %s.

All other signed-in sessions have been signed out.

If you did not make this change, reset your password right away.

- The vidtube Team`, username, changedAt.UTC().Format("2006-01-02 15:04 MST"))
}

func (s *SMTPService) send(ctx context.Context, to, subject, body string) error {
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	sender, err := mail.ParseAddress(s.from)
	if err != nil {
		return fmt.Errorf("invalid sender %q: %w", s.from, err)
	}

	client, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := deliver(client, sender.Address, rcpt.Address, s.buildMessage(to, subject, body)); err != nil {
		return err
	}

	if err := client.Quit(); err != nil {
		slog.Warn("smtp QUIT command failed", "component", "email", "error", err)
	}
	return nil
}

// dial connects, upgrades to TLS when offered and authenticates.
func (s *SMTPService) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))

	dialer := net.Dialer{Timeout: smtpTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating SMTP client: %w", err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS: %w", err)
		}
	} else if !insecurePorts[s.port] {
		client.Close()
		return nil, fmt.Errorf("STARTTLS not available on port %d", s.port)
	}

	if s.username != "" && s.password != "" {
		if err := client.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			client.Close()
			return nil, fmt.Errorf("SMTP authentication: %w", err)
		}
	}

	return client, nil
}

func deliver(client *smtp.Client, from, to, msg string) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL command: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT command: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA command: %w", err)
	}
	_, writeErr := wc.Write([]byte(msg))
	closeErr := wc.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}
	return nil
}

func (s *SMTPService) buildMessage(to, subject, body string) string {
	var b strings.Builder
	header := func(name, value string) {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}

	header("From", s.from)
	header("To", to)
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", time.Now().UTC().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.String()
}
