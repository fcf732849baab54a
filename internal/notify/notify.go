// Package notify runs the side effects of a completed payment and of client
// lifecycle events: the invoice email and the internal alerts. Each outbox
// kind maps to one independent step.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/jobpost-payments/internal/outbox"
	"github.com/cuongbtq/jobpost-payments/shared/mailer"
)

// ErrNotDeliverable marks a failure that retrying cannot fix.
var ErrNotDeliverable = errors.New("notification not deliverable")

// Alert types as stored in email_alerts.alert_type.
const (
	AlertNewJobPosted     = "new_job_posted"
	AlertClientRegistered = "client_registered"
	AlertNoSaleJobStaged  = "no_sale_job_staged"
)

// JobPostContext is what a job notification needs to know about the job
// post and its owner.
type JobPostContext struct {
	JobPostID      string `db:"id"`
	Title          string `db:"title"`
	Classification string `db:"classification"`
	CompanyName    string `db:"company_name"`
	ClientID       string `db:"client_id"`
	ClientEmail    string `db:"client_email"`
	ClientName     string `db:"client_name"`
}

// ClientContext describes a client and its owner's profile.
type ClientContext struct {
	ClientID    string `db:"id"`
	CompanyName string `db:"company_name"`
	Email       string `db:"email"`
	FullName    string `db:"full_name"`
}

// EmailRecord is one email_notifications row.
type EmailRecord struct {
	ClientID          string
	RecipientEmail    string
	EmailType         string
	Subject           string
	ProviderMessageID string
	Reference         string
}

// Directory is the read side the fanout depends on, plus the delivery log.
type Directory interface {
	JobPostContext(ctx context.Context, jobPostID string) (*JobPostContext, error)
	ClientContext(ctx context.Context, clientID string) (*ClientContext, error)
	AdminEmails(ctx context.Context) ([]string, error)
	ActiveAlertEmails(ctx context.Context, alertType string) ([]string, error)
	HasEmailNotification(ctx context.Context, emailType, reference string) (bool, error)
	RecordEmailNotification(ctx context.Context, rec EmailRecord) error
}

// Config holds the fanout's static settings.
type Config struct {
	FromAddress string
	PublicURL   string
}

// Fanout dispatches outbox messages to the mailer and the alert endpoint.
type Fanout struct {
	dir         Directory
	mailer      mailer.Mailer
	alerts      AlertSender
	fromAddress string
	publicURL   string
	logger      *slog.Logger
}

func NewFanout(dir Directory, m mailer.Mailer, alerts AlertSender, cfg Config, logger *slog.Logger) *Fanout {
	return &Fanout{
		dir:         dir,
		mailer:      m,
		alerts:      alerts,
		fromAddress: cfg.FromAddress,
		publicURL:   strings.TrimRight(cfg.PublicURL, "/"),
		logger:      logger,
	}
}

// Dispatch runs the step for msg.Kind. Errors wrapping ErrNotDeliverable are
// permanent; anything else may succeed on retry.
func (f *Fanout) Dispatch(ctx context.Context, msg *outbox.Message) error {
	switch msg.Kind {
	case outbox.KindInvoiceEmail:
		var p outbox.InvoicePayload
		if err := msg.Decode(&p); err != nil {
			return fmt.Errorf("%w: %v", ErrNotDeliverable, err)
		}
		return f.SendInvoice(ctx, p)

	case outbox.KindNewJobPostedAlert, outbox.KindNoSaleJobStagedAlert:
		var p outbox.JobAlertPayload
		if err := msg.Decode(&p); err != nil {
			return fmt.Errorf("%w: %v", ErrNotDeliverable, err)
		}
		alertType := AlertNewJobPosted
		if msg.Kind == outbox.KindNoSaleJobStagedAlert {
			alertType = AlertNoSaleJobStaged
		}
		return f.SendJobAlert(ctx, alertType, p)

	case outbox.KindClientRegisteredAlert:
		var p outbox.ClientAlertPayload
		if err := msg.Decode(&p); err != nil {
			return fmt.Errorf("%w: %v", ErrNotDeliverable, err)
		}
		return f.SendClientAlert(ctx, p)
	}

	return fmt.Errorf("%w: unknown outbox kind %q", ErrNotDeliverable, msg.Kind)
}
