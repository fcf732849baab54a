package router

import (
	"fmt"

	"github.com/cuongbtq/jobpost-payments/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) (*gin.Engine, error) {
	if err := handler.RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	if err := r.SetTrustedProxies(deps.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	paymentHandler := handler.NewPaymentHandler(deps)
	jobPostHandler := handler.NewJobPostHandler(deps)
	clientHandler := handler.NewClientHandler(deps)

	r.GET("/health", healthHandler.Health)

	// Processor-facing and browser-facing payment endpoints keep their
	// historical unversioned paths.
	r.POST("/create-payment-intent",
		RateLimitMiddleware(deps.RateLimitRPS, deps.RateBurst, deps.Logger),
		paymentHandler.CreatePaymentIntent,
	)
	r.POST("/stripe-webhook", paymentHandler.StripeWebhook)

	// Preflights are answered by CORSMiddleware before this handler runs.
	r.OPTIONS("/*path", func(c *gin.Context) {})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/pricing", jobPostHandler.Pricing)

		jobPosts := v1.Group("/job-posts")
		{
			// GET /api/v1/job-posts - List job posts with filtering and pagination
			jobPosts.GET("", jobPostHandler.ListJobPosts)

			// GET /api/v1/job-posts/:id - Job post with its payment attempts
			jobPosts.GET("/:id", jobPostHandler.GetJobPost)
		}

		v1.POST("/clients/:client_id/welcome", clientHandler.SendWelcome)
	}

	return r, nil
}
