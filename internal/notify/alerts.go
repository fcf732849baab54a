package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/outbox"
)

// Alert is the body posted to the internal alert endpoint.
type Alert struct {
	AlertType       string   `json:"alertType"`
	RecipientEmails []string `json:"recipientEmails"`
	ClientName      string   `json:"clientName"`
	CompanyName     string   `json:"companyName"`
	DashboardURL    string   `json:"dashboardUrl"`
	ClientEmail     string   `json:"clientEmail,omitempty"`
	ClientID        string   `json:"clientId"`
	JobTitle        string   `json:"jobTitle,omitempty"`
	JobPostID       string   `json:"jobPostId,omitempty"`
}

// AlertSender delivers one alert.
type AlertSender interface {
	SendAlert(ctx context.Context, a Alert) error
}

// NewAlertSender returns an HTTPAlertSender, or a LogAlertSender when no
// endpoint is configured.
func NewAlertSender(endpoint, serviceKey string, timeout time.Duration, logger *slog.Logger) AlertSender {
	if strings.TrimSpace(endpoint) == "" {
		logger.Info("Alert endpoint not set, alerts will be logged only")
		return &LogAlertSender{logger: logger}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAlertSender{
		endpoint:   endpoint,
		serviceKey: serviceKey,
		client:     &http.Client{Timeout: timeout},
	}
}

// HTTPAlertSender posts alerts as JSON with a bearer service key.
type HTTPAlertSender struct {
	endpoint   string
	serviceKey string
	client     *http.Client
}

func (s *HTTPAlertSender) SendAlert(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotDeliverable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotDeliverable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("alert endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return err
	}
	return fmt.Errorf("%w: %v", ErrNotDeliverable, err)
}

// LogAlertSender only logs alerts.
type LogAlertSender struct {
	logger *slog.Logger
}

func (s *LogAlertSender) SendAlert(_ context.Context, a Alert) error {
	s.logger.Info("Alert (endpoint not configured)",
		slog.String("alert_type", a.AlertType),
		slog.Int("recipients", len(a.RecipientEmails)),
		slog.String("client_id", a.ClientID),
	)
	return nil
}

// Recipients returns the admin emails plus the active emails configured for
// alertType, trimmed and de-duplicated case-insensitively in first-seen
// order.
func (f *Fanout) Recipients(ctx context.Context, alertType string) ([]string, error) {
	admins, err := f.dir.AdminEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("load admin emails: %w", err)
	}
	configured, err := f.dir.ActiveAlertEmails(ctx, alertType)
	if err != nil {
		return nil, fmt.Errorf("load %s alert emails: %w", alertType, err)
	}
	return UnionEmails(admins, configured), nil
}

// UnionEmails merges address lists without duplicates.
func UnionEmails(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, e := range list {
			e = strings.TrimSpace(e)
			if e == "" {
				continue
			}
			key := strings.ToLower(e)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

// SendJobAlert notifies staff about a job post. No recipients is a no-op.
func (f *Fanout) SendJobAlert(ctx context.Context, alertType string, p outbox.JobAlertPayload) error {
	log := f.logger.With(
		slog.String("alert_type", alertType),
		slog.String("job_post_id", p.JobPostID),
	)

	recipients, err := f.Recipients(ctx, alertType)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		log.Info("No alert recipients configured, skipping")
		return nil
	}

	jc, err := f.dir.JobPostContext(ctx, p.JobPostID)
	if err != nil {
		return fmt.Errorf("load job post for alert: %w", err)
	}

	a := Alert{
		AlertType:       alertType,
		RecipientEmails: recipients,
		ClientName:      orDefault(jc.ClientName, "Client"),
		CompanyName:     orDefault(jc.CompanyName, "Company"),
		DashboardURL:    f.publicURL + "/dashboard/manage-jobs",
		ClientEmail:     jc.ClientEmail,
		ClientID:        jc.ClientID,
		JobTitle:        jc.Title,
		JobPostID:       jc.JobPostID,
	}
	if err := f.alerts.SendAlert(ctx, a); err != nil {
		return fmt.Errorf("send %s alert: %w", alertType, err)
	}

	log.Info("Alert sent", slog.Int("recipients", len(recipients)))
	return nil
}

// SendClientAlert notifies staff about a newly registered client.
func (f *Fanout) SendClientAlert(ctx context.Context, p outbox.ClientAlertPayload) error {
	log := f.logger.With(
		slog.String("alert_type", AlertClientRegistered),
		slog.String("client_id", p.ClientID),
	)

	recipients, err := f.Recipients(ctx, AlertClientRegistered)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		log.Info("No alert recipients configured, skipping")
		return nil
	}

	cc, err := f.dir.ClientContext(ctx, p.ClientID)
	if err != nil {
		return fmt.Errorf("load client for alert: %w", err)
	}

	a := Alert{
		AlertType:       AlertClientRegistered,
		RecipientEmails: recipients,
		ClientName:      orDefault(cc.FullName, "Client"),
		CompanyName:     orDefault(cc.CompanyName, "Company"),
		DashboardURL:    f.publicURL + "/dashboard/clients",
		ClientEmail:     cc.Email,
		ClientID:        cc.ClientID,
	}
	if err := f.alerts.SendAlert(ctx, a); err != nil {
		return fmt.Errorf("send %s alert: %w", AlertClientRegistered, err)
	}

	log.Info("Alert sent", slog.Int("recipients", len(recipients)))
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
