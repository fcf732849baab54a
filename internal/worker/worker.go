// Package worker consumes outbox announcements from RabbitMQ, runs the
// notification step for each claimed row and keeps the outbox moving with
// periodic relay and staged job post sweeps.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/outbox"
	"github.com/cuongbtq/jobpost-payments/internal/worker/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robfig/cron/v3"
)

// Store is the outbox persistence the worker needs.
type Store interface {
	ClaimOutbox(ctx context.Context, id string) (*outbox.Message, error)
	MarkSent(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id, lastError string) error
	MarkFailed(ctx context.Context, id, lastError string) error
	ReleaseStuck(ctx context.Context, cutoff time.Time) (int64, error)
	TouchStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	FindStagedJobPosts(ctx context.Context, cutoff time.Time, limit int) ([]domain.StagedJobPost, error)
	EnqueueOutbox(ctx context.Context, msgs ...*outbox.Message) ([]string, error)
}

// Source delivers broker messages.
type Source interface {
	Consume(consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
}

// Dispatcher runs the notification step for one outbox row.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *outbox.Message) error
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Store         Store
	Source        Source
	Publisher     outbox.Publisher
	Dispatcher    Dispatcher
	QueueName     string
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
	MaxAttempts   int

	RelayInterval time.Duration
	RelayAfter    time.Duration
	ClaimTimeout  time.Duration
	BatchSize     int

	SweepInterval time.Duration
	StaleAfter    time.Duration
}

// Worker represents the outbox dispatcher
type Worker struct {
	logger        *slog.Logger
	store         Store
	source        Source
	publisher     outbox.Publisher
	dispatcher    Dispatcher
	workerID      string
	queueName     string
	concurrency   int
	prefetchCount int
	jobTimeout    time.Duration
	maxAttempts   int

	relayInterval time.Duration
	relayAfter    time.Duration
	claimTimeout  time.Duration
	batchSize     int
	sweepInterval time.Duration
	staleAfter    time.Duration

	jobsChan chan *domain.OutboxDelivery
	cron     *cron.Cron
	now      func() time.Time
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:        cfg.Logger,
		store:         cfg.Store,
		source:        cfg.Source,
		publisher:     cfg.Publisher,
		dispatcher:    cfg.Dispatcher,
		workerID:      "worker-" + uuid.NewString()[:8],
		queueName:     cfg.QueueName,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		jobTimeout:    cfg.JobTimeout,
		maxAttempts:   cfg.MaxAttempts,
		relayInterval: cfg.RelayInterval,
		relayAfter:    cfg.RelayAfter,
		claimTimeout:  cfg.ClaimTimeout,
		batchSize:     cfg.BatchSize,
		sweepInterval: cfg.SweepInterval,
		staleAfter:    cfg.StaleAfter,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}

	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.prefetchCount <= 0 {
		w.prefetchCount = w.concurrency
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = 30 * time.Second
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = 5
	}
	if w.batchSize <= 0 {
		w.batchSize = 100
	}
	w.jobsChan = make(chan *domain.OutboxDelivery, w.concurrency)

	return w
}

// Start begins consuming outbox messages and schedules the sweeps. It
// returns once everything is running.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Int("max_attempts", w.maxAttempts),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.startMessageDispatcher(ctx, deliveries)
	}()

	if err := w.startScheduler(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	return nil
}

// Stop gracefully stops the worker, waiting for in-flight messages.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		if w.cron != nil {
			<-w.cron.Stop().Done()
		}
		close(w.stopChan)
		w.wg.Wait()
		w.logger.Info("Worker stopped")
	})
}
