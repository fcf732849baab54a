package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/api/domain"
	"github.com/cuongbtq/jobpost-payments/internal/api/storage"
	"github.com/cuongbtq/jobpost-payments/internal/outbox"
	"github.com/cuongbtq/jobpost-payments/internal/pricing"
	"github.com/cuongbtq/jobpost-payments/shared/stripeclient"
)

const defaultFailureReason = "Payment failed"

// StepResult describes what one reconciliation step did.
type StepResult string

const (
	StepApplied   StepResult = "applied"
	StepDuplicate StepResult = "duplicate"
	StepRejected  StepResult = "rejected"
	StepStale     StepResult = "stale"
	StepNotFound  StepResult = "not_found"
	StepFailed    StepResult = "failed"
	StepSkipped   StepResult = "skipped"
)

// Outcome reports how an authenticated event was handled. The webhook
// response does not depend on it.
type Outcome struct {
	EventID     string
	EventType   string
	Event       domain.PaymentEvent
	Duplicate   bool
	JobPost     StepResult
	Transaction StepResult
	Published   int
}

// Reconciler applies processor webhook events to job posts and payment
// transactions.
type Reconciler struct {
	store     ReconcilerStore
	verifier  EventVerifier
	events    EventStore
	publisher outbox.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewReconciler returns a Reconciler. events and publisher may be nil.
func NewReconciler(store ReconcilerStore, verifier EventVerifier, events EventStore, publisher outbox.Publisher, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		verifier:  verifier,
		events:    events,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleWebhookEvent verifies payload against the signature header and, for
// the three payment intent outcomes, moves the job post and transaction
// addressed by the event's intent id.
//
// Only verification failures are returned as errors. Once the event is
// authenticated every step failure is logged and reflected in the Outcome.
func (r *Reconciler) HandleWebhookEvent(ctx context.Context, payload []byte, signature string) (*Outcome, error) {
	ev, err := r.verify(payload, signature)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		EventID:     ev.ID,
		EventType:   ev.Type,
		Event:       domain.ParsePaymentEvent(ev.Type),
		JobPost:     StepSkipped,
		Transaction: StepSkipped,
	}
	log := r.logger.With(
		slog.String("event_id", ev.ID),
		slog.String("event_type", ev.Type),
	)

	if out.Event == domain.EventUnknown {
		log.Info("Ignoring unhandled webhook event")
		return out, nil
	}

	if r.alreadyProcessed(ctx, ev.ID, log) {
		out.Duplicate = true
		log.Info("Webhook event already processed")
		return out, nil
	}

	log = log.With(slog.String("payment_intent_id", ev.IntentID))

	var ids []string
	out.JobPost, ids = r.reconcileJobPost(ctx, ev, out.Event, log)
	out.Transaction = r.reconcileTransaction(ctx, ev, out.Event, log)

	if len(ids) > 0 {
		out.Published = outbox.PublishIDs(ctx, r.publisher, ids, log)
	}

	if out.JobPost != StepFailed && out.Transaction != StepFailed {
		r.remember(ctx, ev.ID, log)
	} else {
		log.Warn("Webhook event left unremembered so a redelivery can finish it")
	}

	log.Info("Webhook event reconciled",
		slog.String("job_post", string(out.JobPost)),
		slog.String("transaction", string(out.Transaction)),
		slog.Int("outbox_published", out.Published),
	)
	return out, nil
}

func (r *Reconciler) verify(payload []byte, signature string) (*stripeclient.Event, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, domain.ErrMissingSignature
	}
	ev, err := r.verifier.ConstructEvent(payload, signature)
	switch {
	case err == nil:
		return ev, nil
	case errors.Is(err, stripeclient.ErrMissingSignature):
		return nil, domain.ErrMissingSignature
	case errors.Is(err, stripeclient.ErrInvalidSignature):
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	default:
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
}

// alreadyProcessed consults the event store. A store failure is treated as
// not seen; the transition function keeps redelivery harmless.
func (r *Reconciler) alreadyProcessed(ctx context.Context, eventID string, log *slog.Logger) bool {
	if r.events == nil {
		return false
	}
	seen, err := r.events.Seen(ctx, eventID)
	if err != nil {
		log.Warn("Event store unavailable, continuing without de-duplication", slog.Any("error", err))
		return false
	}
	return seen
}

func (r *Reconciler) remember(ctx context.Context, eventID string, log *slog.Logger) {
	if r.events == nil {
		return
	}
	if _, err := r.events.Remember(ctx, eventID); err != nil {
		log.Warn("Failed to remember webhook event", slog.Any("error", err))
	}
}

func (r *Reconciler) reconcileJobPost(ctx context.Context, ev *stripeclient.Event, pe domain.PaymentEvent, log *slog.Logger) (StepResult, []string) {
	jp, err := r.store.GetJobPostByIntent(ctx, ev.IntentID)
	if errors.Is(err, domain.ErrJobPostNotFound) {
		log.Warn("No job post waiting on payment intent")
		return StepNotFound, nil
	}
	if err != nil {
		log.Error("Failed to load job post", slog.Any("error", err))
		return StepFailed, nil
	}

	log = log.With(slog.String("job_post_id", jp.ID))

	current := jp.State()
	next, err := domain.NextJobPostState(current, pe)
	if errors.Is(err, domain.ErrNoTransition) {
		log.Info("Job post already in target state", slog.String("state", current.String()))
		return StepDuplicate, nil
	}
	if err != nil {
		log.Warn("Rejected job post transition", slog.Any("error", err))
		return StepRejected, nil
	}

	t := storage.JobPostTransition{
		JobPostID: jp.ID,
		IntentID:  ev.IntentID,
		From:      current,
		To:        next,
	}
	if next.Status == domain.JobPostStatusPosted {
		msgs, err := r.postedMessages(ev, jp.ID, jp.ClientID, jp.AmountCents)
		if err != nil {
			log.Error("Failed to build notifications", slog.Any("error", err))
		} else {
			t.Outbox = msgs
		}
	}

	ids, err := r.store.ApplyJobPostTransition(ctx, t)
	if errors.Is(err, domain.ErrStaleState) {
		log.Warn("Job post changed concurrently, transition skipped")
		return StepStale, nil
	}
	if err != nil {
		log.Error("Failed to update job post", slog.Any("error", err))
		return StepFailed, nil
	}

	log.Info("Job post transitioned",
		slog.String("from", current.String()),
		slog.String("to", next.String()),
	)
	return StepApplied, ids
}

func (r *Reconciler) postedMessages(ev *stripeclient.Event, jobPostID, clientID string, fallbackCents int64) ([]*outbox.Message, error) {
	amount := ev.AmountCents
	if amount == 0 {
		amount = fallbackCents
	}
	currency := ev.Currency
	if currency == "" {
		currency = pricing.Currency
	}
	paidAt := ev.Created
	if paidAt.IsZero() {
		paidAt = r.now()
	}

	invoice, err := outbox.New(outbox.KindInvoiceEmail, ev.IntentID, outbox.InvoicePayload{
		JobPostID:          jobPostID,
		ClientID:           clientID,
		IntentID:           ev.IntentID,
		AmountCents:        amount,
		Currency:           currency,
		PaymentMethodTypes: ev.PaymentMethodTypes,
		PaidAt:             paidAt.UTC(),
	})
	if err != nil {
		return nil, err
	}
	alert, err := outbox.New(outbox.KindNewJobPostedAlert, ev.IntentID, outbox.JobAlertPayload{
		JobPostID: jobPostID,
		ClientID:  clientID,
		IntentID:  ev.IntentID,
	})
	if err != nil {
		return nil, err
	}
	return []*outbox.Message{invoice, alert}, nil
}

func (r *Reconciler) reconcileTransaction(ctx context.Context, ev *stripeclient.Event, pe domain.PaymentEvent, log *slog.Logger) StepResult {
	pt, err := r.store.GetTransactionByIntent(ctx, ev.IntentID)
	if errors.Is(err, domain.ErrTransactionNotFound) {
		log.Warn("No payment transaction for payment intent")
		return StepNotFound
	}
	if err != nil {
		log.Error("Failed to load payment transaction", slog.Any("error", err))
		return StepFailed
	}

	next, err := domain.NextTransactionStatus(pt.Status, pe)
	if errors.Is(err, domain.ErrNoTransition) {
		log.Info("Payment transaction already in target state", slog.String("status", string(pt.Status)))
		return StepDuplicate
	}
	if err != nil {
		log.Warn("Rejected payment transaction transition", slog.Any("error", err))
		return StepRejected
	}

	u := storage.TransactionUpdate{
		IntentID: ev.IntentID,
		From:     pt.Status,
		To:       next,
	}
	if ev.LatestChargeID != "" {
		u.ChargeID = &ev.LatestChargeID
	}
	if len(ev.PaymentMethodTypes) > 0 {
		u.PaymentMethod = &ev.PaymentMethodTypes[0]
	}
	if next == domain.TransactionStatusFailed {
		reason := ev.FailureMessage
		if reason == "" {
			reason = defaultFailureReason
		}
		u.FailureReason = &reason
	}

	err = r.store.ApplyTransactionTransition(ctx, u)
	if errors.Is(err, domain.ErrStaleState) {
		log.Warn("Payment transaction changed concurrently, transition skipped")
		return StepStale
	}
	if err != nil {
		log.Error("Failed to update payment transaction", slog.Any("error", err))
		return StepFailed
	}

	log.Info("Payment transaction transitioned",
		slog.String("from", string(pt.Status)),
		slog.String("to", string(next)),
	)
	return StepApplied
}
