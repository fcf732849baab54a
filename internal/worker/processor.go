package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/notify"
	"github.com/cuongbtq/jobpost-payments/internal/worker/domain"
)

// settleTimeout bounds the status update after a dispatch, which must run
// even when the worker is shutting down.
const settleTimeout = 5 * time.Second

// processMessage claims the outbox row, runs its notification step and
// records the outcome. The returned error drives the ACK/NACK decision.
func (w *Worker) processMessage(ctx context.Context, d *domain.OutboxDelivery) error {
	// Step 1: Claim the row (pending -> processing)
	msg, err := w.store.ClaimOutbox(ctx, d.OutboxID)
	if err != nil {
		if errors.Is(err, domain.ErrMessageAlreadyClaimed) {
			return fmt.Errorf("outbox message %s: %w", d.OutboxID, err)
		}
		return domain.NewRetryableError(fmt.Errorf("failed to claim outbox message: %w", err))
	}

	log := w.logger.With(
		slog.String("outbox_id", msg.ID),
		slog.String("kind", string(msg.Kind)),
		slog.Int("attempt", msg.Attempts),
	)

	settleCtx, cancelSettle := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancelSettle()

	// Step 2: Attempts already used up by earlier crashes
	if msg.Attempts > w.maxAttempts {
		w.markFailed(settleCtx, log, msg.ID, "max attempts exceeded")
		return fmt.Errorf("%w: %d attempts", domain.ErrMaxAttemptsExceeded, msg.Attempts-1)
	}

	// Step 3: Run the notification step under the job timeout
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	err = w.dispatcher.Dispatch(jobCtx, msg)
	cancel()

	if err == nil {
		if markErr := w.store.MarkSent(settleCtx, msg.ID); markErr != nil {
			// The claim timeout releases the row; the invoice resend guard
			// stops a second email.
			log.Error("Failed to mark outbox message sent", slog.String("error", markErr.Error()))
		}
		log.Info("Outbox message delivered")
		return nil
	}

	// Step 4: Permanent failures are never retried
	if errors.Is(err, notify.ErrNotDeliverable) {
		w.markFailed(settleCtx, log, msg.ID, err.Error())
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	if msg.Attempts < w.maxAttempts {
		log.Warn("Outbox message will be retried",
			slog.String("error", err.Error()),
			slog.Int("max_attempts", w.maxAttempts),
		)
		if markErr := w.store.MarkRetry(settleCtx, msg.ID, err.Error()); markErr != nil {
			// The claim timeout releases the row instead.
			log.Error("Failed to return outbox message to pending", slog.String("error", markErr.Error()))
		}
		// Not requeued on the broker: the relay delay is the backoff.
		return fmt.Errorf("%w: dispatch failed: %v", domain.ErrRetryScheduled, err)
	}

	log.Warn("Outbox message exceeded max attempts",
		slog.Int("max_attempts", w.maxAttempts),
	)
	w.markFailed(settleCtx, log, msg.ID, err.Error())
	return fmt.Errorf("%w: %v", domain.ErrMaxAttemptsExceeded, err)
}

func (w *Worker) markFailed(ctx context.Context, log *slog.Logger, id, reason string) {
	if err := w.store.MarkFailed(ctx, id, reason); err != nil {
		log.Error("Failed to mark outbox message failed", slog.String("error", err.Error()))
	}
}
