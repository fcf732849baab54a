package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/jobpost-payments/internal/api/domain"
	"github.com/cuongbtq/jobpost-payments/internal/api/dto"
	"github.com/cuongbtq/jobpost-payments/internal/api/model"
	"github.com/cuongbtq/jobpost-payments/internal/pricing"
	"github.com/cuongbtq/jobpost-payments/shared/stripeclient"
	"github.com/google/uuid"
)

// Initiator creates or reopens a job post for payment and opens a payment
// intent for it.
type Initiator struct {
	store     InitiatorStore
	processor PaymentProcessor
	logger    *slog.Logger
}

func NewInitiator(store InitiatorStore, processor PaymentProcessor, logger *slog.Logger) *Initiator {
	return &Initiator{
		store:     store,
		processor: processor,
		logger:    logger,
	}
}

// CreateOrUpdateJobPayment validates req, upserts the job post in
// pending_payment with the server-side price, and opens a payment intent.
//
// The job post write happens before the intent is created. The intent id
// patch and the transaction insert happen after; a failure there is logged
// and the intent is still returned, since the processor-side intent already
// exists.
func (s *Initiator) CreateOrUpdateJobPayment(ctx context.Context, req *dto.CreatePaymentIntentRequest) (*dto.CreatePaymentIntentResponse, error) {
	if req == nil || req.JobPostData == nil || strings.TrimSpace(req.ClientID) == "" || strings.TrimSpace(req.JobPostData.Title) == "" {
		return nil, domain.ErrMissingFields
	}

	tier, ok := pricing.Lookup(req.JobPostData.Classification)
	if !ok {
		return nil, domain.ErrInvalidClassification
	}

	if _, err := uuid.Parse(req.ClientID); err != nil {
		return nil, domain.ErrClientNotFound
	}

	jp := newJobPost(req, tier)

	if req.ExistingJobID != "" {
		if _, err := uuid.Parse(req.ExistingJobID); err != nil {
			return nil, domain.ErrJobPostNotFound
		}
		jp.ID = req.ExistingJobID
		if err := s.store.UpdateJobPostForPayment(ctx, jp); err != nil {
			return nil, domain.NewPersistenceError("update job post", err)
		}
	} else {
		if err := s.store.CreateJobPost(ctx, jp); err != nil {
			return nil, domain.NewPersistenceError("create job post", err)
		}
	}

	log := s.logger.With(
		slog.String("job_post_id", jp.ID),
		slog.String("client_id", jp.ClientID),
		slog.String("classification", jp.Classification),
	)

	intent, err := s.processor.CreatePaymentIntent(ctx, stripeclient.IntentRequest{
		AmountCents: tier.PriceCents,
		Currency:    pricing.Currency,
		Description: fmt.Sprintf("Job Posting: %s (%s)", jp.Title, jp.Classification),
		Metadata: map[string]string{
			"job_post_id":    jp.ID,
			"client_id":      jp.ClientID,
			"classification": jp.Classification,
		},
	})
	if err != nil {
		log.Error("Failed to create payment intent", slog.Any("error", err))
		return nil, &domain.ProcessorError{Op: "create payment intent", Err: err}
	}

	log = log.With(slog.String("payment_intent_id", intent.ID))

	if err := s.store.SetJobPostPaymentIntent(ctx, jp.ID, intent.ID); err != nil {
		log.Error("Failed to record payment intent on job post", slog.Any("error", err))
	}

	tx := &model.PaymentTransaction{
		JobPostID:             jp.ID,
		StripePaymentIntentID: intent.ID,
		AmountCents:           tier.PriceCents,
		Currency:              pricing.Currency,
		Status:                domain.TransactionStatusPending,
	}
	if err := s.store.InsertPaymentTransaction(ctx, tx); errors.Is(err, domain.ErrTransactionExists) {
		log.Warn("Payment transaction already recorded")
	} else if err != nil {
		log.Error("Failed to insert payment transaction", slog.Any("error", err))
	}

	log.Info("Payment intent created", slog.Int64("amount_cents", tier.PriceCents))

	return &dto.CreatePaymentIntentResponse{
		ClientSecret:    intent.ClientSecret,
		JobPostID:       jp.ID,
		PaymentIntentID: intent.ID,
	}, nil
}

func newJobPost(req *dto.CreatePaymentIntentRequest, tier pricing.Tier) *model.JobPost {
	data := req.JobPostData
	jp := &model.JobPost{
		ClientID:       req.ClientID,
		Title:          data.Title,
		JobType:        data.Type,
		Classification: string(tier.Classification),
		Location:       data.Location,
		Salary:         data.Salary,
		Description:    data.Description,
		Requirements:   data.Requirements,
		Benefits:       data.Benefits,
		Status:         domain.JobPostStatusPendingPayment,
		PaymentStatus:  domain.PaymentStatusPending,
		AmountCents:    tier.PriceCents,
		StripePriceID:  tier.PriceID,
	}
	if c := req.CompanyData; c != nil {
		jp.CompanyName = c.Name
		jp.CompanyAddress = c.Address
		jp.CompanyPhone = c.Phone
		jp.CompanyEmail = c.Email
		jp.CompanyWebsite = c.Website
		jp.CompanyDescription = c.Description
	}
	return jp
}
