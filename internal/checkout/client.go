package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/api/dto"
	"github.com/cuongbtq/jobpost-payments/shared/stripeclient"
)

// APIError is a non-2xx answer from the payment API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment api returned %d: %s", e.StatusCode, e.Message)
}

// HTTPIntentClient calls the create-payment-intent endpoint.
type HTTPIntentClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPIntentClient(baseURL string, timeout time.Duration) *HTTPIntentClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPIntentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPIntentClient) CreatePaymentIntent(ctx context.Context, req *dto.CreatePaymentIntentRequest) (*dto.CreatePaymentIntentResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/create-payment-intent", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post create-payment-intent: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e dto.ErrorResponse
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	var out dto.CreatePaymentIntentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.ClientSecret == "" {
		return nil, errors.New("payment api returned no client secret")
	}
	return &out, nil
}

// IntentConfirmer is the processor call ProcessorConfirmer needs.
type IntentConfirmer interface {
	ConfirmPaymentIntent(ctx context.Context, intentID, paymentMethod string) (*stripeclient.Intent, error)
}

// ProcessorConfirmer confirms through the processor API using the intent
// id embedded in the client secret. It stands in for the hosted payment
// form and is meant for test mode.
type ProcessorConfirmer struct {
	api IntentConfirmer
}

func NewProcessorConfirmer(api IntentConfirmer) *ProcessorConfirmer {
	return &ProcessorConfirmer{api: api}
}

// ErrPaymentNotCompleted is returned when confirmation left the intent in a
// non-final state such as requires_action.
var ErrPaymentNotCompleted = errors.New("payment not completed")

func (p *ProcessorConfirmer) Confirm(ctx context.Context, clientSecret, paymentMethod string) error {
	intentID, err := IntentIDFromSecret(clientSecret)
	if err != nil {
		return err
	}
	intent, err := p.api.ConfirmPaymentIntent(ctx, intentID, paymentMethod)
	if err != nil {
		return err
	}
	switch intent.Status {
	case "succeeded", "processing":
		return nil
	}
	return fmt.Errorf("%w: intent is %s", ErrPaymentNotCompleted, intent.Status)
}

// IntentIDFromSecret extracts "pi_123" from "pi_123_secret_abc".
func IntentIDFromSecret(secret string) (string, error) {
	id, _, ok := strings.Cut(secret, "_secret_")
	if !ok || !strings.HasPrefix(id, "pi_") {
		return "", fmt.Errorf("malformed client secret")
	}
	return id, nil
}
