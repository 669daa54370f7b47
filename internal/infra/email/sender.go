package email

import (
	"errors"
	"fmt"
	"path/filepath"

	"service_entry_reporter/internal/infra/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// ErrSend signals an SMTP transport failure. Artifacts already on disk are
// unaffected: the report is durable even when the notification is not.
var ErrSend = errors.New("email send failed")

// Message is one outgoing report email.
type Message struct {
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []string
}

// SMTPSender sends report emails through the configured SMTP relay.
// Authentication is optional; the default deployment relays over port 25
// without credentials.
type SMTPSender struct {
	cfg    *config.AppConfig
	logger *logrus.Logger
}

func NewSMTPSender(cfg *config.AppConfig, logger *logrus.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger}
}

// Send delivers one message to the configured recipient list, with one
// text/csv attachment per artifact.
func (s *SMTPSender) Send(msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.SMTPFrom)
	m.SetHeader("To", s.cfg.Recipients...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternative("text/html", msg.HTMLBody)
	}
	for _, path := range msg.Attachments {
		name := filepath.Base(path)
		m.Attach(path, gomail.SetHeader(map[string][]string{
			"Content-Type": {fmt.Sprintf("text/csv; name=%q", name)},
		}))
		s.logger.Infof("Attachment added: %s", name)
	}

	s.logger.Infof("Email compose start: %d recipient(s)", len(s.cfg.Recipients))

	d := gomail.Dialer{Host: s.cfg.SMTPHost, Port: s.cfg.SMTPPort}
	if s.cfg.SMTPUser != "" {
		d.Username = s.cfg.SMTPUser
		d.Password = s.cfg.SMTPPass
	}
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	s.logger.Info("Email send success")
	return nil
}
