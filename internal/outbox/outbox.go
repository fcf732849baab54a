// Package outbox models notification work written in the same transaction as
// the state change that caused it and dispatched later by the worker.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Kind selects the notification step the worker runs for a row.
type Kind string

const (
	KindInvoiceEmail          Kind = "invoice_email"
	KindNewJobPostedAlert     Kind = "new_job_posted_alert"
	KindClientRegisteredAlert Kind = "client_registered_alert"
	KindNoSaleJobStagedAlert  Kind = "no_sale_job_staged_alert"
)

// Status is the dispatch state of a row.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Message is one notification_outbox row.
type Message struct {
	ID          string          `db:"id"`
	Kind        Kind            `db:"kind"`
	DedupeKey   string          `db:"dedupe_key"`
	Payload     json.RawMessage `db:"payload"`
	Status      Status          `db:"status"`
	Attempts    int             `db:"attempts"`
	LastError   *string         `db:"last_error"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
	ProcessedAt *time.Time      `db:"processed_at"`
}

// New builds a pending message. ref identifies the subject of the
// notification; kind and ref together form the dedupe key, so a second
// message for the same pair is dropped on insert.
func New(kind Kind, ref string, payload any) (*Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		DedupeKey: DedupeKey(kind, ref),
		Payload:   body,
		Status:    StatusPending,
	}, nil
}

// DedupeKey returns the unique key for kind and ref.
func DedupeKey(kind Kind, ref string) string {
	return string(kind) + ":" + ref
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload for %s: %w", m.Kind, m.ID, err)
	}
	return nil
}

// InvoicePayload carries the processor-side facts the receipt is built from.
// Job and client details are read at dispatch time.
type InvoicePayload struct {
	JobPostID          string    `json:"job_post_id"`
	ClientID           string    `json:"client_id"`
	IntentID           string    `json:"payment_intent_id"`
	AmountCents        int64     `json:"amount_cents"`
	Currency           string    `json:"currency"`
	PaymentMethodTypes []string  `json:"payment_method_types"`
	PaidAt             time.Time `json:"paid_at"`
}

// JobAlertPayload identifies the job post an alert is about.
type JobAlertPayload struct {
	JobPostID string `json:"job_post_id"`
	ClientID  string `json:"client_id"`
	IntentID  string `json:"payment_intent_id,omitempty"`
}

// ClientAlertPayload identifies a newly registered client.
type ClientAlertPayload struct {
	ClientID string `json:"client_id"`
}

// Envelope is the broker message body; it only points at the row.
type Envelope struct {
	OutboxID string `json:"outbox_id"`
}

const insertQuery = `
	INSERT INTO notification_outbox (id, kind, dedupe_key, payload, status, attempts, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, 0, NOW(), NOW())
	ON CONFLICT (dedupe_key) DO NOTHING
	RETURNING id
`

// Insert writes msgs with q, which is normally the transaction holding the
// state change. It returns the ids of rows actually inserted; rows whose
// dedupe key already exists are skipped.
func Insert(ctx context.Context, q sqlx.QueryerContext, msgs ...*Message) ([]string, error) {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		var id string
		// Row.Scan reports iteration errors, so a failed insert is never
		// mistaken for a dedupe conflict.
		err := q.QueryRowxContext(ctx, insertQuery, m.ID, m.Kind, m.DedupeKey, []byte(m.Payload), m.Status).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			continue
		case err != nil:
			return nil, fmt.Errorf("insert outbox %s: %w", m.DedupeKey, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Publisher sends a JSON message to the broker.
type Publisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// PublishIDs announces each outbox id on the broker. Failures are logged and
// left for the relay sweep; the number published is returned.
func PublishIDs(ctx context.Context, pub Publisher, ids []string, logger *slog.Logger) int {
	if pub == nil {
		return 0
	}
	published := 0
	for _, id := range ids {
		if err := pub.PublishJSON(ctx, Envelope{OutboxID: id}); err != nil {
			logger.Warn("Failed to publish outbox message, relay will retry",
				slog.String("outbox_id", id),
				slog.Any("error", err),
			)
			continue
		}
		published++
	}
	return published
}
