package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/api/domain"
	"github.com/cuongbtq/jobpost-payments/internal/api/dto"
	"github.com/cuongbtq/jobpost-payments/internal/api/model"
	"github.com/cuongbtq/jobpost-payments/internal/api/storage"
	"github.com/cuongbtq/jobpost-payments/internal/pricing"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// JobPostHandler serves job post reads and the price list.
type JobPostHandler struct {
	logger *slog.Logger
	store  JobPostReader
}

func NewJobPostHandler(deps *Dependencies) *JobPostHandler {
	return &JobPostHandler{
		logger: deps.Logger,
		store:  deps.JobPosts,
	}
}

// GetJobPost handles GET /api/v1/job-posts/:id
func (h *JobPostHandler) GetJobPost(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "id must be a valid UUID"})
		return
	}

	jp, err := h.store.GetJobPost(c.Request.Context(), id)
	if errors.Is(err, domain.ErrJobPostNotFound) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Job post not found"})
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	txs, err := h.store.ListTransactionsByJobPost(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := dto.JobPostDetailResponse{
		JobPost:      toJobPostDTO(jp),
		Transactions: make([]dto.PaymentTransactionDTO, len(txs)),
	}
	for i := range txs {
		resp.Transactions[i] = toTransactionDTO(&txs[i])
	}

	c.JSON(http.StatusOK, resp)
}

// ListJobPosts handles GET /api/v1/job-posts
func (h *JobPostHandler) ListJobPosts(c *gin.Context) {
	var req dto.ListJobPostsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Info("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobPostCursor(req.Cursor)
	if err != nil {
		h.logger.Info("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}

	jobPosts, err := h.store.ListJobPosts(c.Request.Context(), storage.JobPostFilter{
		ClientID:      req.ClientID,
		Status:        req.Status,
		PaymentStatus: req.PaymentStatus,
		PageSize:      req.PageSize,
		Cursor:        cursor,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	hasMore := len(jobPosts) > req.PageSize
	if hasMore {
		jobPosts = jobPosts[:req.PageSize]
	}

	resp := dto.ListJobPostsResponse{JobPosts: make([]dto.JobPostDTO, len(jobPosts))}
	for i := range jobPosts {
		resp.JobPosts[i] = toJobPostDTO(&jobPosts[i])
	}

	if hasMore {
		last := jobPosts[len(jobPosts)-1]
		resp.NextCursor = EncodeJobPostCursor(&storage.JobPostCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// Pricing handles GET /api/v1/pricing
func (h *JobPostHandler) Pricing(c *gin.Context) {
	tiers := pricing.All()
	out := make([]dto.PricingTierDTO, len(tiers))
	for i, t := range tiers {
		out[i] = dto.PricingTierDTO{
			Classification: string(t.Classification),
			PriceCents:     t.PriceCents,
			Price:          pricing.FormatAmount(t.PriceCents),
			Label:          t.Label,
			Description:    t.Description,
		}
	}
	c.JSON(http.StatusOK, gin.H{"tiers": out, "currency": pricing.Currency})
}

func toJobPostDTO(jp *model.JobPost) dto.JobPostDTO {
	return dto.JobPostDTO{
		ID:                    jp.ID,
		ClientID:              jp.ClientID,
		Title:                 jp.Title,
		JobType:               jp.JobType,
		Classification:        jp.Classification,
		Location:              jp.Location,
		Salary:                jp.Salary,
		CompanyName:           jp.CompanyName,
		Status:                string(jp.Status),
		PaymentStatus:         string(jp.PaymentStatus),
		AmountCents:           jp.AmountCents,
		StripePriceID:         jp.StripePriceID,
		StripePaymentIntentID: jp.StripePaymentIntentID,
		PostedAt:              formatTimePtr(jp.PostedAt),
		CreatedAt:             jp.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             jp.UpdatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(tx *model.PaymentTransaction) dto.PaymentTransactionDTO {
	return dto.PaymentTransactionDTO{
		ID:                    tx.ID,
		StripePaymentIntentID: tx.StripePaymentIntentID,
		StripeChargeID:        tx.StripeChargeID,
		AmountCents:           tx.AmountCents,
		Currency:              tx.Currency,
		Status:                string(tx.Status),
		PaymentMethod:         tx.PaymentMethod,
		FailureReason:         tx.FailureReason,
		ProcessedAt:           formatTimePtr(tx.ProcessedAt),
		CreatedAt:             tx.CreatedAt.Format(time.RFC3339),
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
