// Package mail sends plain-text notification emails.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/noah-isme/bulletin-api/pkg/config"
)

// ErrNoRecipient is returned for messages without a destination address.
var ErrNoRecipient = errors.New("mail: recipient address missing")

// Message is a single outbound email.
type Message struct {
	ToAddress string
	ToName    string
	Subject   string
	Text      string
	HTML      string
}

// Mailer delivers messages synchronously so callers can record failures.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New picks the driver configured in cfg.
func New(cfg config.MailConfig, logger *zap.Logger) (Mailer, error) {
	switch cfg.Driver {
	case "", config.MailDriverLog:
		return NewLogMailer(logger), nil
	case config.MailDriverSendgrid:
		if cfg.SendgridAPIKey == "" {
			return nil, fmt.Errorf("mail: sendgrid driver requires SENDGRID_API_KEY")
		}
		return NewSendgridMailer(cfg.SendgridAPIKey, cfg.FromName, cfg.FromAddress), nil
	default:
		return nil, fmt.Errorf("mail: unknown driver %q", cfg.Driver)
	}
}

// LogMailer writes messages to the logger instead of sending them.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer builds a mailer for local development.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger.Named("mail")}
}

// Send logs the message.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if strings.TrimSpace(msg.ToAddress) == "" {
		return ErrNoRecipient
	}
	m.logger.Info("email",
		zap.String("to", msg.ToAddress),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)
	return nil
}

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridMailer delivers through the SendGrid v3 API.
type SendgridMailer struct {
	key  string
	host string
	from *sgmail.Email
}

// NewSendgridMailer builds a SendGrid-backed mailer.
func NewSendgridMailer(apiKey, fromName, fromAddress string) *SendgridMailer {
	return &SendgridMailer{
		key:  apiKey,
		host: sendgridHost,
		from: sgmail.NewEmail(fromName, fromAddress),
	}
}

// Send posts the message and treats any 4xx/5xx answer as a failure. The
// SendGrid client takes no context, so ctx is not propagated.
func (m *SendgridMailer) Send(_ context.Context, msg Message) error {
	if strings.TrimSpace(msg.ToAddress) == "" {
		return ErrNoRecipient
	}
	to := sgmail.NewEmail(msg.ToName, msg.ToAddress)
	payload := sgmail.NewSingleEmail(m.from, msg.Subject, to, msg.Text, msg.HTML)

	req := sendgrid.GetRequest(m.key, sendgridEndpoint, m.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(payload)

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
