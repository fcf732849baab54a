package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jobpost-payments/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				return
			}
			w.handleDelivery(ctx, workerName, msg)
		}
	}
}

// handleDelivery processes one message and settles it with the broker.
func (w *Worker) handleDelivery(ctx context.Context, workerName string, msg *domain.OutboxDelivery) {
	log := w.logger.With(
		slog.String("worker_name", workerName),
		slog.String("outbox_id", msg.OutboxID),
	)

	err := w.processMessage(ctx, msg)

	if err == nil || errors.Is(err, domain.ErrMessageAlreadyClaimed) || errors.Is(err, domain.ErrRetryScheduled) {
		switch {
		case errors.Is(err, domain.ErrRetryScheduled):
			log.Warn("Delivery failed, relay will republish", slog.String("reason", err.Error()))
		case err != nil:
			log.Info("Duplicate delivery, acknowledging", slog.String("reason", err.Error()))
		}
		if ackErr := msg.Acker.Ack(false); ackErr != nil {
			log.Error("Failed to ACK message", slog.String("error", ackErr.Error()))
		}
		return
	}

	requeue := w.shouldRequeueJob(err)
	log.Error("Outbox message processing failed",
		slog.String("error", err.Error()),
		slog.Bool("requeue", requeue),
	)

	if nackErr := msg.Acker.Nack(false, requeue); nackErr != nil {
		log.Error("Failed to NACK message", slog.String("error", nackErr.Error()))
	}
}

// shouldRequeueJob determines if a message should be requeued based on the
// error type
func (w *Worker) shouldRequeueJob(err error) bool {
	if errors.Is(err, domain.ErrMessageAlreadyClaimed) {
		return false
	}

	if errors.Is(err, domain.ErrMaxAttemptsExceeded) {
		return false
	}

	if errors.Is(err, domain.ErrRetryScheduled) {
		return false
	}

	if errors.Is(err, domain.ErrInvalidPayload) {
		return false
	}

	var retryableErr *domain.RetryableError
	if errors.As(err, &retryableErr) {
		return true
	}

	// Default: don't requeue for unknown errors; the relay picks up
	// anything left pending
	return false
}
