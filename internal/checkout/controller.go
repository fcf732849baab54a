// Package checkout drives a client's payment session: request an intent,
// hold its client secret while the payment form is shown, confirm, and
// discard everything on close.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/jobpost-payments/internal/api/dto"
)

// State is the session state.
type State string

const (
	StateIdle           State = "idle"
	StateCreatingIntent State = "creating_intent"
	StateReady          State = "ready"
	StateSubmitting     State = "submitting"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
)

var (
	// ErrBusy is returned by Open when a session is already open.
	ErrBusy = errors.New("checkout already open")

	// ErrNotReady is returned by Submit outside the ready state.
	ErrNotReady = errors.New("checkout not ready for payment")

	// ErrClosed is returned when the session was closed while a call was in
	// flight. The call's result is discarded.
	ErrClosed = errors.New("checkout closed")
)

// IntentClient requests a payment intent for a job post.
type IntentClient interface {
	CreatePaymentIntent(ctx context.Context, req *dto.CreatePaymentIntentRequest) (*dto.CreatePaymentIntentResponse, error)
}

// Confirmer confirms a payment with the processor.
type Confirmer interface {
	Confirm(ctx context.Context, clientSecret, paymentMethod string) error
}

// Transition is reported to the observer on every state change. Err is set
// when the change was caused by a failure.
type Transition struct {
	From State
	To   State
	Err  error
}

// Options configure a Controller.
type Options struct {
	// OnSuccess runs once after a payment is confirmed, before the session
	// closes.
	OnSuccess func(*dto.CreatePaymentIntentResponse)
	// OnTransition observes state changes. It is called with the session
	// lock released.
	OnTransition func(Transition)
	Logger       *slog.Logger
}

// Controller is the payment session state machine. It is safe for
// concurrent use.
type Controller struct {
	intents   IntentClient
	confirmer Confirmer
	opts      Options

	mu      sync.Mutex
	state   State
	gen     uint64
	intent  *dto.CreatePaymentIntentResponse
	lastErr error

	notifyMu sync.Mutex
}

func NewController(intents IntentClient, confirmer Confirmer, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		intents:   intents,
		confirmer: confirmer,
		opts:      opts,
		state:     StateIdle,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ClientSecret returns the secret of the open intent, or "" when none is
// held.
func (c *Controller) ClientSecret() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.intent == nil {
		return ""
	}
	return c.intent.ClientSecret
}

// Intent returns the open intent, if any.
func (c *Controller) Intent() *dto.CreatePaymentIntentResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.intent == nil {
		return nil
	}
	cp := *c.intent
	return &cp
}

// LastError returns the failure surfaced by the most recent Open or Submit.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Open requests a fresh intent. On failure the session returns to idle and
// Open may be retried.
func (c *Controller) Open(ctx context.Context, req *dto.CreatePaymentIntentRequest) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.gen++
	gen := c.gen
	c.lastErr = nil
	t := c.setLocked(StateCreatingIntent, nil)
	c.mu.Unlock()
	c.emit(t)

	resp, err := c.intents.CreatePaymentIntent(ctx, req)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		c.lastErr = err
		t = c.setLocked(StateIdle, err)
		c.mu.Unlock()
		c.emit(t)
		c.opts.Logger.Warn("Payment intent request failed", slog.String("error", err.Error()))
		return fmt.Errorf("create payment intent: %w", err)
	}
	c.intent = resp
	t = c.setLocked(StateReady, nil)
	c.mu.Unlock()
	c.emit(t)

	c.opts.Logger.Info("Checkout ready",
		slog.String("job_post_id", resp.JobPostID),
		slog.String("payment_intent_id", resp.PaymentIntentID),
	)
	return nil
}

// Submit confirms the open intent with paymentMethod. On success the
// success callback runs and the session closes. On failure the message is
// surfaced and the session stays ready for another attempt.
func (c *Controller) Submit(ctx context.Context, paymentMethod string) error {
	c.mu.Lock()
	if c.state != StateReady || c.intent == nil {
		c.mu.Unlock()
		return ErrNotReady
	}
	gen := c.gen
	secret := c.intent.ClientSecret
	c.lastErr = nil
	t := c.setLocked(StateSubmitting, nil)
	c.mu.Unlock()
	c.emit(t)

	err := c.confirmer.Confirm(ctx, secret, paymentMethod)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		c.lastErr = err
		failed := c.setLocked(StateFailed, err)
		ready := c.setLocked(StateReady, nil)
		c.mu.Unlock()
		c.emit(failed)
		c.emit(ready)
		c.opts.Logger.Warn("Payment confirmation failed", slog.String("error", err.Error()))
		return fmt.Errorf("confirm payment: %w", err)
	}
	intent := *c.intent
	t = c.setLocked(StateSucceeded, nil)
	c.mu.Unlock()
	c.emit(t)

	c.opts.Logger.Info("Payment confirmed", slog.String("payment_intent_id", intent.PaymentIntentID))
	if c.opts.OnSuccess != nil {
		c.opts.OnSuccess(&intent)
	}
	c.Close()
	return nil
}

// Close resets the session to idle and discards the held secret. A call in
// flight completes with ErrClosed and its result is dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state == StateIdle && c.intent == nil {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.intent = nil
	t := c.setLocked(StateIdle, nil)
	c.mu.Unlock()
	c.emit(t)
}

func (c *Controller) setLocked(to State, err error) Transition {
	t := Transition{From: c.state, To: to, Err: err}
	c.state = to
	return t
}

func (c *Controller) emit(t Transition) {
	if c.opts.OnTransition == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.opts.OnTransition(t)
}
