package notify

import (
	"github.com/trendwatch/trendwatch-go/internal/config"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// EmailSender delivers one multipart alert email.
type EmailSender interface {
	Send(to, subject, textBody, htmlBody string) error
}

// SMTPSender sends through a plain SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

func NewSMTPSender(cfg config.SMTPConfig, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}
}

func (s *SMTPSender) Send(to, subject, textBody, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error("Email send failed", zap.String("to", to), zap.Error(err))
		return err
	}
	return nil
}
