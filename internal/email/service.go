package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/appointment-engine/internal/config"
)

type Service interface {
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

// Dialer is the part of gomail.Dialer the sender uses.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	dialer Dialer
	from   string
}

func NewSMTPService(cfg config.MailConfig) Service {
	return NewService(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From)
}

func NewService(dialer Dialer, from string) Service {
	return &smtpService{dialer: dialer, from: from}
}

func (s *smtpService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
