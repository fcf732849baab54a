package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apidomain "github.com/cuongbtq/jobpost-payments/internal/api/domain"
	"github.com/cuongbtq/jobpost-payments/internal/notify"
	"github.com/cuongbtq/jobpost-payments/internal/outbox"
	"github.com/cuongbtq/jobpost-payments/internal/worker/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// lastErrorMax bounds what is kept of a dispatch error.
const lastErrorMax = 1000

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

const outboxColumns = `id, kind, dedupe_key, payload, status, attempts, last_error, created_at, updated_at, processed_at`

// ClaimOutbox moves a pending row to processing and counts the attempt.
// It returns domain.ErrMessageAlreadyClaimed when the row is missing or
// not pending.
func (s *Storage) ClaimOutbox(ctx context.Context, id string) (*outbox.Message, error) {
	query := `
		UPDATE notification_outbox
		SET status = $1,
		    attempts = attempts + 1,
		    updated_at = NOW()
		WHERE id = $2
		  AND status = $3
		RETURNING ` + outboxColumns

	var msg outbox.Message
	err := s.db.GetContext(ctx, &msg, query, outbox.StatusProcessing, id, outbox.StatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim outbox message - already claimed or not found",
				slog.String("outbox_id", id),
			)
			return nil, domain.ErrMessageAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim outbox message: %w", err)
	}

	s.logger.Debug("Outbox message claimed",
		slog.String("outbox_id", id),
		slog.String("kind", string(msg.Kind)),
		slog.Int("attempts", msg.Attempts),
	)

	return &msg, nil
}

// MarkSent settles a processing row as delivered.
func (s *Storage) MarkSent(ctx context.Context, id string) error {
	return s.settle(ctx, id, outbox.StatusSent, "")
}

// MarkFailed settles a processing row as undeliverable.
func (s *Storage) MarkFailed(ctx context.Context, id, lastError string) error {
	return s.settle(ctx, id, outbox.StatusFailed, lastError)
}

// MarkRetry hands a processing row back to pending for the next attempt.
func (s *Storage) MarkRetry(ctx context.Context, id, lastError string) error {
	query := `
		UPDATE notification_outbox
		SET status = $1,
		    last_error = $2,
		    updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	_, err := s.db.ExecContext(ctx, query, outbox.StatusPending, truncate(lastError), id, outbox.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to return outbox message to pending: %w", err)
	}
	return nil
}

func (s *Storage) settle(ctx context.Context, id string, status outbox.Status, lastError string) error {
	query := `
		UPDATE notification_outbox
		SET status = $1,
		    last_error = NULLIF($2, ''),
		    processed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, status, truncate(lastError), id, outbox.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message %s: %w", status, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Outbox settle - no rows affected (claim may have been released)",
			slog.String("outbox_id", id),
			slog.String("status", string(status)),
		)
	}

	return nil
}

// ReleaseStuck returns processing rows last touched before cutoff to
// pending. Their worker is presumed dead.
func (s *Storage) ReleaseStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE notification_outbox
		SET status = $1,
		    last_error = 'claim timed out',
		    updated_at = NOW()
		WHERE status = $2 AND updated_at < $3
	`

	result, err := s.db.ExecContext(ctx, query, outbox.StatusPending, outbox.StatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release stuck outbox messages: %w", err)
	}
	return result.RowsAffected()
}

// TouchStalePending selects up to limit pending rows last touched before
// cutoff, bumps their updated_at so a concurrent relay skips them, and
// returns their ids for republishing.
func (s *Storage) TouchStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `
		UPDATE notification_outbox
		SET updated_at = NOW()
		WHERE id IN (
			SELECT id FROM notification_outbox
			WHERE status = $1 AND updated_at < $2
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id
	`

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, outbox.StatusPending, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to select stale outbox messages: %w", err)
	}
	return ids, nil
}

// FindStagedJobPosts returns unpaid draft or pending_payment job posts
// created before cutoff that have no no-sale alert queued yet.
func (s *Storage) FindStagedJobPosts(ctx context.Context, cutoff time.Time, limit int) ([]domain.StagedJobPost, error) {
	query := `
		SELECT jp.id, jp.client_id, jp.created_at
		FROM job_posts jp
		WHERE jp.status = ANY($1)
		  AND jp.payment_status <> $2
		  AND jp.created_at < $3
		  AND NOT EXISTS (
			SELECT 1 FROM notification_outbox o
			WHERE o.dedupe_key = $4 || jp.id::text
		  )
		ORDER BY jp.created_at
		LIMIT $5
	`

	statuses := pq.Array([]string{
		string(apidomain.JobPostStatusDraft),
		string(apidomain.JobPostStatusPendingPayment),
	})
	prefix := outbox.DedupeKey(outbox.KindNoSaleJobStagedAlert, "")

	var posts []domain.StagedJobPost
	err := s.db.SelectContext(ctx, &posts, query, statuses, apidomain.PaymentStatusCompleted, cutoff, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find staged job posts: %w", err)
	}
	return posts, nil
}

// EnqueueOutbox inserts msgs outside any business transaction.
func (s *Storage) EnqueueOutbox(ctx context.Context, msgs ...*outbox.Message) ([]string, error) {
	return outbox.Insert(ctx, s.db, msgs...)
}

// JobPostContext loads a job post with its client and owner profile.
func (s *Storage) JobPostContext(ctx context.Context, jobPostID string) (*notify.JobPostContext, error) {
	query := `
		SELECT jp.id, jp.title, jp.classification, jp.company_name, jp.client_id,
		       COALESCE(p.email, '') AS client_email,
		       COALESCE(p.full_name, '') AS client_name
		FROM job_posts jp
		LEFT JOIN clients c ON c.id = jp.client_id
		LEFT JOIN profiles p ON p.user_id = c.user_id
		WHERE jp.id = $1
	`

	var jc notify.JobPostContext
	if err := s.db.GetContext(ctx, &jc, query, jobPostID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: job post %s not found", notify.ErrNotDeliverable, jobPostID)
		}
		return nil, fmt.Errorf("failed to load job post context: %w", err)
	}
	return &jc, nil
}

// ClientContext loads a client with its owner profile.
func (s *Storage) ClientContext(ctx context.Context, clientID string) (*notify.ClientContext, error) {
	query := `
		SELECT c.id, c.company_name,
		       COALESCE(p.email, '') AS email,
		       COALESCE(p.full_name, '') AS full_name
		FROM clients c
		LEFT JOIN profiles p ON p.user_id = c.user_id
		WHERE c.id = $1
	`

	var cc notify.ClientContext
	if err := s.db.GetContext(ctx, &cc, query, clientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: client %s not found", notify.ErrNotDeliverable, clientID)
		}
		return nil, fmt.Errorf("failed to load client context: %w", err)
	}
	return &cc, nil
}

// AdminEmails returns the email of every admin profile.
func (s *Storage) AdminEmails(ctx context.Context) ([]string, error) {
	query := `
		SELECT email FROM profiles
		WHERE role = 'admin' AND email IS NOT NULL AND email <> ''
		ORDER BY email
	`

	var emails []string
	if err := s.db.SelectContext(ctx, &emails, query); err != nil {
		return nil, fmt.Errorf("failed to load admin emails: %w", err)
	}
	return emails, nil
}

// ActiveAlertEmails returns the active recipients configured for alertType.
func (s *Storage) ActiveAlertEmails(ctx context.Context, alertType string) ([]string, error) {
	query := `
		SELECT recipient_email FROM email_alerts
		WHERE alert_type = $1 AND is_active = TRUE
		ORDER BY recipient_email
	`

	var emails []string
	if err := s.db.SelectContext(ctx, &emails, query, alertType); err != nil {
		return nil, fmt.Errorf("failed to load alert emails: %w", err)
	}
	return emails, nil
}

// HasEmailNotification reports whether an email of emailType was already
// recorded for reference.
func (s *Storage) HasEmailNotification(ctx context.Context, emailType, reference string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM email_notifications
			WHERE email_type = $1 AND reference = $2
		)
	`

	var exists bool
	if err := s.db.GetContext(ctx, &exists, query, emailType, reference); err != nil {
		return false, fmt.Errorf("failed to check email notification: %w", err)
	}
	return exists, nil
}

// RecordEmailNotification logs a delivered email. A second record for the
// same type and reference is ignored.
func (s *Storage) RecordEmailNotification(ctx context.Context, rec notify.EmailRecord) error {
	query := `
		INSERT INTO email_notifications
			(client_id, recipient_email, email_type, subject, status, provider_message_id, reference, created_at)
		VALUES ($1, $2, $3, $4, 'sent', $5, $6, NOW())
		ON CONFLICT (email_type, reference) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ClientID, rec.RecipientEmail, rec.EmailType, rec.Subject, rec.ProviderMessageID, rec.Reference)
	if err != nil {
		return fmt.Errorf("failed to record email notification: %w", err)
	}
	return nil
}

func truncate(s string) string {
	if len(s) <= lastErrorMax {
		return s
	}
	return s[:lastErrorMax]
}
