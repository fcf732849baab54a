package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/jobpost-payments/internal/api/domain"
	"github.com/cuongbtq/jobpost-payments/internal/api/dto"
	"github.com/cuongbtq/jobpost-payments/internal/api/model"
	"github.com/cuongbtq/jobpost-payments/internal/api/service"
	"github.com/cuongbtq/jobpost-payments/internal/api/storage"
	"github.com/gin-gonic/gin"
)

// DefaultMaxBodyBytes caps webhook and JSON request bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

// PaymentInitiator opens payment intents for job posts.
type PaymentInitiator interface {
	CreateOrUpdateJobPayment(ctx context.Context, req *dto.CreatePaymentIntentRequest) (*dto.CreatePaymentIntentResponse, error)
}

// WebhookReconciler applies verified processor events.
type WebhookReconciler interface {
	HandleWebhookEvent(ctx context.Context, payload []byte, signature string) (*service.Outcome, error)
}

// WelcomeSender enqueues the client welcome alert.
type WelcomeSender interface {
	Send(ctx context.Context, clientID string) (bool, error)
}

// JobPostReader serves the read endpoints.
type JobPostReader interface {
	GetJobPost(ctx context.Context, id string) (*model.JobPost, error)
	ListJobPosts(ctx context.Context, filter storage.JobPostFilter) ([]model.JobPost, error)
	ListTransactionsByJobPost(ctx context.Context, jobPostID string) ([]model.PaymentTransaction, error)
}

// HealthCheck is one dependency probed by /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Initiator    PaymentInitiator
	Reconciler   WebhookReconciler
	Welcome      WelcomeSender
	JobPosts     JobPostReader
	HealthChecks []HealthCheck
	ServiceName  string
	MaxBodyBytes int64
	RateLimitRPS float64
	RateBurst    int

	// TrustedProxies may set X-Forwarded-For; nil trusts none, so the
	// limiter keys on the socket address.
	TrustedProxies []string
}

// respondError maps a service error to a status code and an
// {"error": ...} body.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status, msg := classifyError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
	} else {
		logger.Info("Request rejected",
			slog.String("path", c.Request.URL.Path),
			slog.String("reason", msg),
		)
	}
	c.JSON(status, dto.ErrorResponse{Error: msg})
}

func classifyError(err error) (int, string) {
	var procErr *domain.ProcessorError
	switch {
	case errors.Is(err, domain.ErrMissingFields):
		return http.StatusBadRequest, "Missing required fields"
	case errors.Is(err, domain.ErrInvalidClassification):
		return http.StatusBadRequest, "Invalid job classification"
	case errors.Is(err, errInvalidBody):
		return http.StatusBadRequest, "Invalid request body"
	case domain.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &procErr):
		return http.StatusBadGateway, "Payment processor error"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
