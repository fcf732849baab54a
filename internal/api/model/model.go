package model

import (
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/api/domain"
)

// JobPost is a job_posts row.
type JobPost struct {
	ID                    string               `db:"id"`
	ClientID              string               `db:"client_id"`
	Title                 string               `db:"title"`
	JobType               string               `db:"job_type"`
	Classification        string               `db:"classification"`
	Location              string               `db:"location"`
	Salary                string               `db:"salary"`
	Description           string               `db:"description"`
	Requirements          string               `db:"requirements"`
	Benefits              string               `db:"benefits"`
	CompanyName           string               `db:"company_name"`
	CompanyAddress        string               `db:"company_address"`
	CompanyPhone          string               `db:"company_phone"`
	CompanyEmail          string               `db:"company_email"`
	CompanyWebsite        string               `db:"company_website"`
	CompanyDescription    string               `db:"company_description"`
	Status                domain.JobPostStatus `db:"status"`
	PaymentStatus         domain.PaymentStatus `db:"payment_status"`
	AmountCents           int64                `db:"amount_cents"`
	StripePriceID         string               `db:"stripe_price_id"`
	StripePaymentIntentID *string              `db:"stripe_payment_intent_id"`
	PostedAt              *time.Time           `db:"posted_at"`
	CreatedAt             time.Time            `db:"created_at"`
	UpdatedAt             time.Time            `db:"updated_at"`
}

// State returns the pair of columns the transition function operates on.
func (j *JobPost) State() domain.JobPostState {
	return domain.JobPostState{Status: j.Status, PaymentStatus: j.PaymentStatus}
}

// PaymentTransaction is a payment_transactions row.
type PaymentTransaction struct {
	ID                    string                   `db:"id"`
	JobPostID             string                   `db:"job_post_id"`
	StripePaymentIntentID string                   `db:"stripe_payment_intent_id"`
	StripeChargeID        *string                  `db:"stripe_charge_id"`
	AmountCents           int64                    `db:"amount_cents"`
	Currency              string                   `db:"currency"`
	Status                domain.TransactionStatus `db:"status"`
	PaymentMethod         *string                  `db:"payment_method"`
	FailureReason         *string                  `db:"failure_reason"`
	ProcessedAt           *time.Time               `db:"processed_at"`
	CreatedAt             time.Time                `db:"created_at"`
	UpdatedAt             time.Time                `db:"updated_at"`
}

// Client is a clients row joined with its owner's profile.
type Client struct {
	ID               string    `db:"id"`
	UserID           string    `db:"user_id"`
	CompanyName      string    `db:"company_name"`
	ContactPhone     string    `db:"contact_phone"`
	Address          string    `db:"address"`
	WelcomeEmailSent bool      `db:"welcome_email_sent"`
	CreatedAt        time.Time `db:"created_at"`
	Email            string    `db:"email"`
	FullName         string    `db:"full_name"`
}
