package infra

import (
	"fmt"
	"net/smtp"

	"concentra/internal/config"

	"github.com/jordan-wright/email"
)

// Mailer wraps SMTP configuration for socio notifications, optionally with
// the settlement PDF attached.
type Mailer struct {
	host     string
	user     string
	password string
	addr     string
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		addr:     fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
	}
}

// Enviar sends a plain-text email. adjunto may be empty.
func (m *Mailer) Enviar(to, subject, body, adjunto string) error {
	e := email.NewEmail()
	e.From = m.user
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	if adjunto != "" {
		if _, err := e.AttachFile(adjunto); err != nil {
			return fmt.Errorf("mailer: attach file: %w", err)
		}
	}

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.password, m.host)
	}
	return e.Send(m.addr, auth)
}
