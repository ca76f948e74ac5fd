package adapters

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Mailer sends transactional mail. The SMTP implementation is the only one
// in production; tests substitute their own.
type Mailer interface {
	SendPasswordReset(to, resetURL string) error
}

// SMTPMailer sends through a plain SMTP relay.
type SMTPMailer struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
	logger   *slog.Logger
}

func NewSMTPMailer(addr, username, password, from string, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{Addr: addr, Username: username, Password: password, From: from, logger: logger}
}

func (m *SMTPMailer) SendPasswordReset(to, resetURL string) error {
	body := fmt.Sprintf("A password reset was requested for your LotView account.\r\n\r\n"+
		"Reset it here (the link expires in 1 hour):\r\n%s\r\n\r\n"+
		"If you did not request this, ignore this email.\r\n", resetURL)
	return m.send(to, "Reset your LotView password", body)
}

func (m *SMTPMailer) send(to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	var a smtp.Auth
	if m.Username != "" {
		host, _, _ := strings.Cut(m.Addr, ":")
		a = smtp.PlainAuth("", m.Username, m.Password, host)
	}
	if err := smtp.SendMail(m.Addr, a, m.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	m.logger.Info("email sent", "to", to, "subject", subject)
	return nil
}

// LogMailer is used when no SMTP relay is configured: it logs the reset URL
// instead of delivering it. Useful in development.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) SendPasswordReset(to, resetURL string) error {
	m.Logger.Info("password reset (email disabled)", "to", to, "url", resetURL)
	return nil
}
