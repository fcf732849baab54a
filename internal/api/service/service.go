// Package service holds the payment flow: opening payment intents for job
// posts, reconciling processor webhooks into job post and transaction state,
// and the one-time client welcome alert.
package service

import (
	"context"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/api/model"
	"github.com/cuongbtq/jobpost-payments/internal/api/storage"
	"github.com/cuongbtq/jobpost-payments/internal/outbox"
	"github.com/cuongbtq/jobpost-payments/shared/stripeclient"
)

// PaymentProcessor opens payment intents.
type PaymentProcessor interface {
	CreatePaymentIntent(ctx context.Context, req stripeclient.IntentRequest) (*stripeclient.Intent, error)
}

// EventVerifier authenticates and parses a raw webhook body.
type EventVerifier interface {
	ConstructEvent(payload []byte, header string) (*stripeclient.Event, error)
}

// EventStore remembers processed webhook event ids.
type EventStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string) (bool, error)
}

// InitiatorStore is the persistence the Initiator writes through.
type InitiatorStore interface {
	CreateJobPost(ctx context.Context, jp *model.JobPost) error
	UpdateJobPostForPayment(ctx context.Context, jp *model.JobPost) error
	SetJobPostPaymentIntent(ctx context.Context, jobPostID, intentID string) error
	InsertPaymentTransaction(ctx context.Context, tx *model.PaymentTransaction) error
}

// ReconcilerStore is the persistence the Reconciler reads and transitions.
type ReconcilerStore interface {
	GetJobPostByIntent(ctx context.Context, intentID string) (*model.JobPost, error)
	GetTransactionByIntent(ctx context.Context, intentID string) (*model.PaymentTransaction, error)
	ApplyJobPostTransition(ctx context.Context, t storage.JobPostTransition) ([]string, error)
	ApplyTransactionTransition(ctx context.Context, u storage.TransactionUpdate) error
}

// WelcomeStore is the persistence the welcome flow needs.
type WelcomeStore interface {
	GetClient(ctx context.Context, clientID string) (*model.Client, error)
	MarkWelcomeSent(ctx context.Context, clientID string, createdAfter time.Time, msg *outbox.Message) ([]string, bool, error)
}
