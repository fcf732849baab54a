package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/api/domain"
	"github.com/cuongbtq/jobpost-payments/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// webhookTimeout bounds reconciliation once the event is accepted. It is
// detached from the sender's connection so a hang-up does not abort writes
// halfway.
const webhookTimeout = 15 * time.Second

// PaymentHandler serves intent creation and the processor webhook.
type PaymentHandler struct {
	logger       *slog.Logger
	initiator    PaymentInitiator
	reconciler   WebhookReconciler
	maxBodyBytes int64
}

func NewPaymentHandler(deps *Dependencies) *PaymentHandler {
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &PaymentHandler{
		logger:       deps.Logger,
		initiator:    deps.Initiator,
		reconciler:   deps.Reconciler,
		maxBodyBytes: maxBody,
	}
}

// CreatePaymentIntent handles POST /create-payment-intent
func (h *PaymentHandler) CreatePaymentIntent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)

	var req dto.CreatePaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Info("Invalid payment intent request", slog.String("error", err.Error()))
		respondError(c, h.logger, bindingError(err))
		return
	}

	resp, err := h.initiator.CreateOrUpdateJobPayment(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// StripeWebhook handles POST /stripe-webhook. The raw body is read as-is
// because the signature covers the exact bytes.
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		h.logger.Warn("Failed to read webhook body",
			slog.String("ip", c.ClientIP()),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), webhookTimeout)
	defer cancel()

	_, err = h.reconciler.HandleWebhookEvent(ctx, body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		msg := domain.ErrMalformedEvent.Error()
		switch {
		case errors.Is(err, domain.ErrMissingSignature):
			msg = domain.ErrMissingSignature.Error()
		case errors.Is(err, domain.ErrInvalidSignature):
			msg = domain.ErrInvalidSignature.Error()
		}
		h.logger.Warn("Rejected webhook",
			slog.String("ip", c.ClientIP()),
			slog.Int("body_length", len(body)),
			slog.String("reason", err.Error()),
		)
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: msg})
		return
	}

	c.JSON(http.StatusOK, dto.WebhookResponse{Received: true})
}
