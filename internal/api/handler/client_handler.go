package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// ClientHandler serves client lifecycle hooks.
type ClientHandler struct {
	logger  *slog.Logger
	welcome WelcomeSender
}

func NewClientHandler(deps *Dependencies) *ClientHandler {
	return &ClientHandler{
		logger:  deps.Logger,
		welcome: deps.Welcome,
	}
}

// SendWelcome handles POST /api/v1/clients/:client_id/welcome
func (h *ClientHandler) SendWelcome(c *gin.Context) {
	sent, err := h.welcome.Send(c.Request.Context(), c.Param("client_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.WelcomeResponse{Sent: sent})
}

// HealthHandler probes every configured dependency.
type HealthHandler struct {
	service string
	checks  []HealthCheck
}

func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{service: deps.ServiceName, checks: deps.HealthChecks}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, hc := range h.checks {
		if err := hc.Check(ctx); err != nil {
			results[hc.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[hc.Name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":  state,
		"service": h.service,
		"checks":  results,
	})
}
