package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/xbook/pkg/logging"
)

// EmailSender delivers one plain-text message.
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a plain-text e-mail to a single recipient.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Address is the sender identity shown to the recipient. An empty Name
// renders as "xbook".
type Address struct {
	Email string
	Name  string
}

func (a Address) name() string {
	if n := strings.TrimSpace(a.Name); n != "" {
		return n
	}
	return "xbook"
}

func (a Address) String() string {
	return fmt.Sprintf("%s <%s>", a.name(), a.Email)
}

// SendGridSender delivers through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   Address
	logger *logging.Logger
}

// NewSendGridSender returns nil when apiKey is empty.
func NewSendGridSender(apiKey string, from Address, logger *logging.Logger) *SendGridSender {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{client: sendgrid.NewSendClient(apiKey), from: from, logger: logger}
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid sender not configured")
	}
	m := mail.NewSingleEmailPlainText(
		mail.NewEmail(s.from.name(), s.from.Email),
		msg.Subject,
		mail.NewEmail("", msg.To),
		msg.Text,
	)
	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("notify: sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Warn("sendgrid rejected booking mail", "status", resp.StatusCode, "body", resp.Body)
		return fmt.Errorf("notify: sendgrid status %d", resp.StatusCode)
	}
	s.logger.Debug("booking mail sent", "provider", "sendgrid", "to", msg.To)
	return nil
}

// StubEmailSender keeps messages in memory and logs them. It stands in when
// no provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
	sent   []Message
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg Message) error {
	s.logger.Debug("booking mail not sent, no provider", "to", msg.To, "subject", msg.Subject)
	s.sent = append(s.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (s *StubEmailSender) Sent() []Message {
	return append([]Message(nil), s.sent...)
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
