// Package mailer sends transactional email through Resend, or only logs it
// when no API key is configured.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resend/resend-go/v2"
)

// ErrNoRecipients is returned when a message has no To address.
var ErrNoRecipients = errors.New("email has no recipients")

// Message is an outbound email.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Tags    map[string]string
}

// Mailer sends a message and returns the provider's message id. An empty id
// with a nil error means the message was accepted but not tracked.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// New returns a ResendMailer for apiKey, or a LogMailer when apiKey is empty.
func New(apiKey string, logger *slog.Logger) Mailer {
	if strings.TrimSpace(apiKey) == "" {
		logger.Info("RESEND_API_KEY not set, emails will be logged only")
		return NewLogMailer(logger)
	}
	return NewResendMailer(apiKey, logger)
}

// ResendMailer delivers through the Resend API.
type ResendMailer struct {
	client *resend.Client
	logger *slog.Logger
}

func NewResendMailer(apiKey string, logger *slog.Logger) *ResendMailer {
	return &ResendMailer{
		client: resend.NewClient(apiKey),
		logger: logger,
	}
}

func (m *ResendMailer) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipients
	}

	req := &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	for name, value := range msg.Tags {
		req.Tags = append(req.Tags, resend.Tag{Name: name, Value: value})
	}

	sent, err := m.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("resend send: %w", err)
	}

	m.logger.Info("Email sent",
		slog.String("provider_id", sent.Id),
		slog.String("subject", msg.Subject),
		slog.Int("recipients", len(msg.To)),
	)
	return sent.Id, nil
}

// LogMailer writes the would-be email to the log and returns an empty id.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipients
	}
	m.logger.Info("Email (provider not configured)",
		slog.Any("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("html_bytes", len(msg.HTML)),
	)
	return "", nil
}
