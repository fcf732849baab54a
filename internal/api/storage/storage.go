package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/api/domain"
	"github.com/cuongbtq/jobpost-payments/internal/api/model"
	"github.com/cuongbtq/jobpost-payments/internal/outbox"
	"github.com/cuongbtq/jobpost-payments/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

const jobPostColumns = `
	id, client_id, title, job_type, classification, location, salary,
	description, requirements, benefits,
	company_name, company_address, company_phone, company_email, company_website, company_description,
	status, payment_status, amount_cents, stripe_price_id, stripe_payment_intent_id,
	posted_at, created_at, updated_at
`

const transactionColumns = `
	id, job_post_id, stripe_payment_intent_id, stripe_charge_id, amount_cents, currency,
	status, payment_method, failure_reason, processed_at, created_at, updated_at
`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// NewStorageFromDB wraps an existing handle.
func NewStorageFromDB(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// CreateJobPost inserts jp. ID and timestamps are filled in by the database.
func (s *Storage) CreateJobPost(ctx context.Context, jp *model.JobPost) error {
	query := `
		INSERT INTO job_posts (
			client_id, title, job_type, classification, location, salary,
			description, requirements, benefits,
			company_name, company_address, company_phone, company_email, company_website, company_description,
			status, payment_status, amount_cents, stripe_price_id
		) VALUES (
			:client_id, :title, :job_type, :classification, :location, :salary,
			:description, :requirements, :benefits,
			:company_name, :company_address, :company_phone, :company_email, :company_website, :company_description,
			:status, :payment_status, :amount_cents, :stripe_price_id
		)
		RETURNING id, created_at, updated_at
	`

	rows, err := s.db.NamedQueryContext(ctx, query, jp)
	if err != nil {
		return fmt.Errorf("failed to create job post: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to create job post: %w", err)
		}
		return fmt.Errorf("failed to create job post: no row returned")
	}
	if err := rows.Scan(&jp.ID, &jp.CreatedAt, &jp.UpdatedAt); err != nil {
		return fmt.Errorf("failed to scan created job post: %w", err)
	}
	return nil
}

// UpdateJobPostForPayment rewrites an existing job post owned by
// jp.ClientID and reopens it for payment. A posted job post is never
// reopened.
func (s *Storage) UpdateJobPostForPayment(ctx context.Context, jp *model.JobPost) error {
	query := `
		UPDATE job_posts SET
			title = :title, job_type = :job_type, classification = :classification,
			location = :location, salary = :salary, description = :description,
			requirements = :requirements, benefits = :benefits,
			company_name = :company_name, company_address = :company_address,
			company_phone = :company_phone, company_email = :company_email,
			company_website = :company_website, company_description = :company_description,
			status = :status, payment_status = :payment_status,
			amount_cents = :amount_cents, stripe_price_id = :stripe_price_id,
			updated_at = NOW()
		WHERE id = :id AND client_id = :client_id AND status <> 'posted'
		RETURNING created_at, updated_at
	`

	rows, err := s.db.NamedQueryContext(ctx, query, jp)
	if err != nil {
		return fmt.Errorf("failed to update job post: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&jp.CreatedAt, &jp.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan updated job post: %w", err)
		}
		return nil
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to update job post: %w", err)
	}

	var status domain.JobPostStatus
	err = s.db.GetContext(ctx, &status, `SELECT status FROM job_posts WHERE id = $1 AND client_id = $2`, jp.ID, jp.ClientID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrJobPostNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check job post: %w", err)
	}
	if status == domain.JobPostStatusPosted {
		return domain.ErrJobPostAlreadyPosted
	}
	return domain.ErrStaleState
}

// SetJobPostPaymentIntent records the intent the job post is currently
// waiting on.
func (s *Storage) SetJobPostPaymentIntent(ctx context.Context, jobPostID, intentID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_posts SET stripe_payment_intent_id = $1, updated_at = NOW() WHERE id = $2`,
		intentID, jobPostID,
	)
	if err != nil {
		return fmt.Errorf("failed to set payment intent on job post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrJobPostNotFound
	}
	return nil
}

// InsertPaymentTransaction inserts tx in pending state.
func (s *Storage) InsertPaymentTransaction(ctx context.Context, tx *model.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (
			job_post_id, stripe_payment_intent_id, amount_cents, currency, status
		) VALUES (
			:job_post_id, :stripe_payment_intent_id, :amount_cents, :currency, :status
		)
		RETURNING id, created_at, updated_at
	`

	rows, err := s.db.NamedQueryContext(ctx, query, tx)
	if err != nil {
		if postgresql.IsUniqueViolation(err) {
			return domain.ErrTransactionExists
		}
		return fmt.Errorf("failed to insert payment transaction: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			if postgresql.IsUniqueViolation(err) {
				return domain.ErrTransactionExists
			}
			return fmt.Errorf("failed to insert payment transaction: %w", err)
		}
		return fmt.Errorf("failed to insert payment transaction: no row returned")
	}
	return rows.Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
}

// GetJobPost returns a job post by id.
func (s *Storage) GetJobPost(ctx context.Context, id string) (*model.JobPost, error) {
	var jp model.JobPost
	err := s.db.GetContext(ctx, &jp, `SELECT `+jobPostColumns+` FROM job_posts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job post: %w", err)
	}
	return &jp, nil
}

// GetJobPostByIntent returns the job post currently waiting on intentID.
func (s *Storage) GetJobPostByIntent(ctx context.Context, intentID string) (*model.JobPost, error) {
	var jp model.JobPost
	err := s.db.GetContext(ctx, &jp,
		`SELECT `+jobPostColumns+` FROM job_posts WHERE stripe_payment_intent_id = $1`, intentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job post by intent: %w", err)
	}
	return &jp, nil
}

// GetTransactionByIntent returns the transaction for intentID.
func (s *Storage) GetTransactionByIntent(ctx context.Context, intentID string) (*model.PaymentTransaction, error) {
	var pt model.PaymentTransaction
	err := s.db.GetContext(ctx, &pt,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE stripe_payment_intent_id = $1`, intentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by intent: %w", err)
	}
	return &pt, nil
}

// JobPostTransition is a conditional move of one job post between states.
type JobPostTransition struct {
	JobPostID string
	IntentID  string
	From      domain.JobPostState
	To        domain.JobPostState
	Outbox    []*outbox.Message
}

// ApplyJobPostTransition moves the job post from t.From to t.To and writes
// t.Outbox in the same transaction. It returns the ids of the outbox rows
// inserted. ErrStaleState means the row no longer matched t.From.
func (s *Storage) ApplyJobPostTransition(ctx context.Context, t JobPostTransition) ([]string, error) {
	query := `
		UPDATE job_posts SET
			status = $1,
			payment_status = $2,
			posted_at = CASE WHEN $1 = 'posted' THEN NOW() ELSE posted_at END,
			updated_at = NOW()
		WHERE id = $3
		  AND stripe_payment_intent_id = $4
		  AND status = $5
		  AND payment_status = $6
	`

	var ids []string
	err := postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			string(t.To.Status), string(t.To.PaymentStatus),
			t.JobPostID, t.IntentID,
			string(t.From.Status), string(t.From.PaymentStatus),
		)
		if err != nil {
			return fmt.Errorf("failed to transition job post: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return domain.ErrStaleState
		}

		if len(t.Outbox) == 0 {
			return nil
		}
		ids, err = outbox.Insert(ctx, tx, t.Outbox...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// TransactionUpdate is a conditional move of one payment transaction.
type TransactionUpdate struct {
	IntentID      string
	From          domain.TransactionStatus
	To            domain.TransactionStatus
	ChargeID      *string
	PaymentMethod *string
	FailureReason *string
}

// ApplyTransactionTransition moves the transaction for u.IntentID from
// u.From to u.To and stamps processed_at.
func (s *Storage) ApplyTransactionTransition(ctx context.Context, u TransactionUpdate) error {
	query := `
		UPDATE payment_transactions SET
			status = $1,
			stripe_charge_id = COALESCE($2, stripe_charge_id),
			payment_method = COALESCE($3, payment_method),
			failure_reason = CASE WHEN $1 = 'succeeded' THEN NULL ELSE COALESCE($4, failure_reason) END,
			processed_at = NOW(),
			updated_at = NOW()
		WHERE stripe_payment_intent_id = $5 AND status = $6
	`

	res, err := s.db.ExecContext(ctx, query,
		string(u.To), u.ChargeID, u.PaymentMethod, u.FailureReason,
		u.IntentID, string(u.From),
	)
	if err != nil {
		return fmt.Errorf("failed to transition payment transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrStaleState
	}
	return nil
}

// ListTransactionsByJobPost returns every payment attempt for a job post,
// newest first.
func (s *Storage) ListTransactionsByJobPost(ctx context.Context, jobPostID string) ([]model.PaymentTransaction, error) {
	var txs []model.PaymentTransaction
	err := s.db.SelectContext(ctx, &txs,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE job_post_id = $1 ORDER BY created_at DESC, id DESC`,
		jobPostID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

type JobPostFilter struct {
	ClientID      string
	Status        string
	PaymentStatus string
	PageSize      int
	Cursor        *JobPostCursor
}

type JobPostCursor struct {
	CreatedAt time.Time
	ID        string
}

// ListJobPosts returns up to PageSize+1 rows so the caller can tell whether
// another page exists.
func (s *Storage) ListJobPosts(ctx context.Context, filter JobPostFilter) ([]model.JobPost, error) {
	query := `SELECT ` + jobPostColumns + ` FROM job_posts WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.ClientID != "" {
		query += fmt.Sprintf(" AND client_id = $%d", argIdx)
		args = append(args, filter.ClientID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.PaymentStatus != "" {
		query += fmt.Sprintf(" AND payment_status = $%d", argIdx)
		args = append(args, filter.PaymentStatus)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobPosts []model.JobPost
	if err := s.db.SelectContext(ctx, &jobPosts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list job posts: %w", err)
	}

	return jobPosts, nil
}

// GetClient returns a client joined with its owner's profile.
func (s *Storage) GetClient(ctx context.Context, clientID string) (*model.Client, error) {
	query := `
		SELECT c.id, c.user_id, c.company_name, c.contact_phone, c.address,
		       c.welcome_email_sent, c.created_at,
		       p.email, p.full_name
		FROM clients c
		JOIN profiles p ON p.user_id = c.user_id
		WHERE c.id = $1
	`
	var c model.Client
	err := s.db.GetContext(ctx, &c, query, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &c, nil
}

// MarkWelcomeSent flips welcome_email_sent for a client created at or after
// createdAfter and enqueues msg in the same transaction. sent is false when
// the flag was already set or the client is outside the window.
func (s *Storage) MarkWelcomeSent(ctx context.Context, clientID string, createdAfter time.Time, msg *outbox.Message) (ids []string, sent bool, err error) {
	query := `
		UPDATE clients SET welcome_email_sent = TRUE
		WHERE id = $1 AND welcome_email_sent = FALSE AND created_at >= $2
	`

	err = postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query, clientID, createdAfter)
		if err != nil {
			return fmt.Errorf("failed to mark welcome email: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}
		sent = true
		ids, err = outbox.Insert(ctx, tx, msg)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return ids, sent, nil
}
