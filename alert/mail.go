package alert

import (
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	mail "github.com/go-mail/mail/v2"

	"github.com/netresearch/datamon/core"
)

// MailConfig configures the SMTP transport.
type MailConfig struct {
	SMTPHost     string
	SMTPPort     int    `default:"25"`
	SMTPUser     string `json:"-"`
	SMTPPassword string `json:"-"`
	EmailFrom    string
	EmailSubject string `default:"message from data monitor"`
	// DefaultDomain completes recipients given without an @.
	DefaultDomain string
}

// MailSender delivers alert mails, one SMTP session per dispatch.
type MailSender struct {
	config MailConfig
	logger core.Logger

	// dial is swapped in tests to avoid a real SMTP relay.
	dial func(msg *mail.Message) error
}

// NewMailSender returns nil when no SMTP relay is configured.
func NewMailSender(c MailConfig, logger core.Logger) *MailSender {
	if c.SMTPHost == "" {
		return nil
	}
	if err := defaults.Set(&c); err != nil {
		panic(err)
	}
	s := &MailSender{config: c, logger: logger}
	s.dial = func(msg *mail.Message) error {
		d := mail.NewDialer(c.SMTPHost, c.SMTPPort, c.SMTPUser, c.SMTPPassword)
		if err := d.DialAndSend(msg); err != nil {
			return fmt.Errorf("dial and send mail: %w", err)
		}
		return nil
	}
	return s
}

// Send mails msg to the recipients. The body goes out as HTML when it looks
// like HTML, as plain text otherwise.
func (s *MailSender) Send(recipients []string, msg string) {
	if len(recipients) == 0 {
		return
	}

	to := make([]string, len(recipients))
	for i, r := range recipients {
		to[i] = s.completeAddress(r)
	}

	contentType := "text/plain"
	if strings.Contains(msg, "</") && strings.Contains(msg, ">") {
		contentType = "text/html"
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.config.EmailFrom)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", s.config.EmailSubject)
	m.SetBody(contentType, msg)

	if err := s.dial(m); err != nil {
		s.logger.Errorf("failed sending email to %q: %v", strings.Join(to, ","), err)
		return
	}
	s.logger.Noticef("succeeded sending email to %q", strings.Join(to, ","))
}

func (s *MailSender) completeAddress(r string) string {
	r = strings.TrimSpace(r)
	if !strings.Contains(r, "@") && s.config.DefaultDomain != "" {
		return r + "@" + s.config.DefaultDomain
	}
	return r
}
