// Package stripeclient adapts stripe-go to the small surface the payment
// flow needs: creating and confirming payment intents and verifying webhook
// events.
package stripeclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	ErrMissingSignature = errors.New("missing stripe signature")
	ErrInvalidSignature = errors.New("invalid stripe signature")
	ErrMalformedEvent   = errors.New("malformed stripe event")
)

// DefaultTimeout bounds each outbound API call. The SDK does not retry, so
// this is also the longest a caller waits on the processor.
const DefaultTimeout = 5 * time.Second

// Config holds the processor credentials.
type Config struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// IntentRequest describes a payment intent to open.
type IntentRequest struct {
	AmountCents int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// Intent is the part of a created payment intent the caller keeps.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountCents  int64
	Currency     string
}

// Event is a verified webhook event. Payment intent fields are populated only
// for payment_intent.* events.
type Event struct {
	ID                 string
	Type               string
	IntentID           string
	AmountCents        int64
	Currency           string
	Created            time.Time
	PaymentMethodTypes []string
	LatestChargeID     string
	FailureMessage     string
	Metadata           map[string]string
}

// Client talks to the Stripe API.
type Client struct {
	api           *client.API
	webhookSecret string
	timeout       time.Duration
}

// New returns a Client for cfg.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// Network retries are off: a retried create could outlive the request
	// that asked for it. The caller retries by starting checkout again.
	sc := &client.API{}
	sc.Init(cfg.SecretKey, stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}))

	return &Client{
		api:           sc,
		webhookSecret: cfg.WebhookSecret,
		timeout:       timeout,
	}
}

// CreatePaymentIntent opens a payment intent with automatic payment methods.
func (c *Client) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(req.Currency),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

// ConfirmPaymentIntent confirms intentID with a payment method id, which in
// test mode may be a fixture such as "pm_card_visa".
func (c *Client) ConfirmPaymentIntent(ctx context.Context, intentID, paymentMethod string) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethod),
	}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Confirm(intentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
			return nil, fmt.Errorf("confirm payment intent: %s: %w", stripeErr.Msg, err)
		}
		return nil, fmt.Errorf("confirm payment intent: %w", err)
	}

	return &Intent{
		ID:          pi.ID,
		Status:      string(pi.Status),
		AmountCents: pi.Amount,
		Currency:    string(pi.Currency),
	}, nil
}

// ConstructEvent verifies the Stripe-Signature header against the raw payload
// and decodes the event. Verification is local HMAC work and does not block.
func (c *Client) ConstructEvent(payload []byte, header string) (*Event, error) {
	return ConstructEvent(payload, header, c.webhookSecret)
}

// ConstructEvent is the secret-explicit form of Client.ConstructEvent.
func ConstructEvent(payload []byte, header, secret string) (*Event, error) {
	if strings.TrimSpace(header) == "" {
		return nil, ErrMissingSignature
	}

	evt, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) {
			return nil, ErrMissingSignature
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{
		ID:   evt.ID,
		Type: string(evt.Type),
	}

	if !strings.HasPrefix(out.Type, "payment_intent.") {
		return out, nil
	}

	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event %s has no data", ErrMalformedEvent, evt.ID)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if pi.ID == "" {
		return nil, fmt.Errorf("%w: event %s has no payment intent id", ErrMalformedEvent, evt.ID)
	}

	out.IntentID = pi.ID
	out.AmountCents = pi.Amount
	out.Currency = string(pi.Currency)
	out.Created = time.Unix(pi.Created, 0).UTC()
	out.PaymentMethodTypes = pi.PaymentMethodTypes
	out.Metadata = pi.Metadata
	if pi.LatestCharge != nil {
		out.LatestChargeID = pi.LatestCharge.ID
	}
	if pi.LastPaymentError != nil {
		out.FailureMessage = pi.LastPaymentError.Msg
	}

	return out, nil
}

// SignPayload returns a valid Stripe-Signature header for payload, for use
// against local endpoints and in tests.
func SignPayload(payload []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  secret,
	}).Header
}
