// Command checkout-cli runs one payment session against a running API
// service. Confirmation goes straight to the processor API, so it needs a
// test-mode secret key in STRIPE_SECRET_KEY.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/api/dto"
	"github.com/cuongbtq/jobpost-payments/internal/checkout"
	"github.com/cuongbtq/jobpost-payments/internal/pricing"
	"github.com/cuongbtq/jobpost-payments/shared/logger"
	"github.com/cuongbtq/jobpost-payments/shared/stripeclient"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	apiURL := flag.String("api", "http://localhost:8080", "Base URL of the API service")
	clientID := flag.String("client-id", "", "Client id the job post belongs to")
	title := flag.String("title", "", "Job title")
	classification := flag.String("classification", string(pricing.Standard), "STANDARD or PREMIUM")
	existingJobID := flag.String("job-id", "", "Existing job post to pay for")
	paymentMethod := flag.String("payment-method", "pm_card_visa", "Test payment method id")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	if *clientID == "" || *title == "" {
		flag.Usage()
		return errors.New("-client-id and -title are required")
	}

	secretKey := os.Getenv("STRIPE_SECRET_KEY")
	if !strings.HasPrefix(secretKey, "sk_test_") {
		return errors.New("STRIPE_SECRET_KEY must be a test-mode key")
	}

	appLogger, err := logger.New(&logger.Config{
		Level:      *logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.Kitchen,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	controller := checkout.NewController(
		checkout.NewHTTPIntentClient(*apiURL, *timeout),
		checkout.NewProcessorConfirmer(stripeclient.New(stripeclient.Config{SecretKey: secretKey})),
		checkout.Options{
			OnSuccess: func(r *dto.CreatePaymentIntentResponse) {
				fmt.Printf("Payment submitted. Job post %s will go live once the webhook lands.\n", r.JobPostID)
			},
			OnTransition: func(t checkout.Transition) {
				attrs := []any{slog.String("from", string(t.From)), slog.String("to", string(t.To))}
				if t.Err != nil {
					attrs = append(attrs, slog.String("error", t.Err.Error()))
				}
				appLogger.Debug("Checkout state changed", attrs...)
			},
			Logger: appLogger.Logger,
		},
	)
	defer controller.Close()

	req := &dto.CreatePaymentIntentRequest{
		JobPostData: &dto.JobPostData{
			Title:          *title,
			Classification: strings.ToUpper(*classification),
		},
		ClientID:      *clientID,
		ExistingJobID: *existingJobID,
	}

	if tier, ok := pricing.Lookup(req.JobPostData.Classification); ok {
		fmt.Printf("Paying $%s %s for a %s job post\n",
			pricing.FormatAmount(tier.PriceCents), strings.ToUpper(pricing.Currency), tier.Classification)
	}

	if err := controller.Open(ctx, req); err != nil {
		return err
	}

	intent := controller.Intent()
	fmt.Printf("Intent %s opened for job post %s\n", intent.PaymentIntentID, intent.JobPostID)

	return controller.Submit(ctx, *paymentMethod)
}
