package service

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
)

// Mailer is the outbound mail boundary. Delivery mechanics live behind
// this interface; the orchestrator only fires and forgets.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, resetToken string) error
	SendEmailVerification(ctx context.Context, to, verifyToken string) error
}

type smtpMailer struct {
	host string
	port string
	user string
	pass string
	from string
}

// NewSMTPMailer returns a Mailer backed by plain SMTP, or nil when no
// host is configured. A nil Mailer makes the forgot-password flow
// report ServiceUnavailable without revealing account existence.
func NewSMTPMailer(host, port, user, pass, from string) Mailer {
	if host == "" {
		return nil
	}
	return &smtpMailer{host: host, port: port, user: user, pass: pass, from: from}
}

func (m *smtpMailer) SendPasswordReset(ctx context.Context, to, resetToken string) error {
	subject := "Reset your password"
	body := fmt.Sprintf("Use this token to reset your password within 10 minutes: %s", resetToken)
	return m.send(to, subject, body)
}

func (m *smtpMailer) SendEmailVerification(ctx context.Context, to, verifyToken string) error {
	subject := "Verify your email"
	body := fmt.Sprintf("Use this token to verify your email within 24 hours: %s", verifyToken)
	return m.send(to, subject, body)
}

func (m *smtpMailer) send(to, subject, body string) error {
	msg := []byte("From: " + m.from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n\r\n" +
		body + "\r\n")

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}
	if err := smtp.SendMail(m.host+":"+m.port, auth, m.from, []string{to}, msg); err != nil {
		log.Printf("mailer: failed to send %q to %s: %v", subject, to, err)
		return err
	}
	return nil
}
