package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/outbox"
	"github.com/robfig/cron/v3"
)

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}

// startScheduler registers the relay and staged sweeps and runs each once
// immediately so a restart does not wait for the first tick.
func (w *Worker) startScheduler(ctx context.Context) error {
	logger := cronLogger{logger: w.logger}
	w.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	jobs := []struct {
		name     string
		interval string
		run      func(context.Context)
	}{
		{"outbox relay", every(w.relayInterval), w.runRelay},
		{"staged job post sweep", every(w.sweepInterval), w.runStagedSweep},
	}

	for _, job := range jobs {
		if job.interval == "" {
			w.logger.Info("Scheduled job disabled", slog.String("job", job.name))
			continue
		}
		run := job.run
		if _, err := w.cron.AddFunc(job.interval, func() { run(ctx) }); err != nil {
			return fmt.Errorf("cron.AddFunc %s: %w", job.name, err)
		}
		w.logger.Info("Scheduled job registered",
			slog.String("job", job.name),
			slog.String("spec", job.interval),
		)

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			run(ctx)
		}()
	}

	w.cron.Start()
	return nil
}

func every(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return "@every " + d.String()
}

// runRelay releases rows whose worker died mid-dispatch and republishes
// pending rows that were never announced or whose announcement was lost.
func (w *Worker) runRelay(ctx context.Context) {
	now := w.now()

	if w.claimTimeout > 0 {
		released, err := w.store.ReleaseStuck(ctx, now.Add(-w.claimTimeout))
		if err != nil {
			w.logger.Error("Outbox relay: failed to release stuck messages", slog.String("error", err.Error()))
		} else if released > 0 {
			w.logger.Warn("Outbox relay: released stuck messages", slog.Int64("count", released))
		}
	}

	ids, err := w.store.TouchStalePending(ctx, now.Add(-w.relayAfter), w.batchSize)
	if err != nil {
		w.logger.Error("Outbox relay: failed to load pending messages", slog.String("error", err.Error()))
		return
	}
	if len(ids) == 0 {
		return
	}

	published := outbox.PublishIDs(ctx, w.publisher, ids, w.logger)
	w.logger.Info("Outbox relay: republished pending messages",
		slog.Int("found", len(ids)),
		slog.Int("published", published),
	)
}

// runStagedSweep queues one no-sale alert per unpaid job post older than
// the stale threshold.
func (w *Worker) runStagedSweep(ctx context.Context) {
	posts, err := w.store.FindStagedJobPosts(ctx, w.now().Add(-w.staleAfter), w.batchSize)
	if err != nil {
		w.logger.Error("Staged sweep: failed to find job posts", slog.String("error", err.Error()))
		return
	}
	if len(posts) == 0 {
		return
	}

	msgs := make([]*outbox.Message, 0, len(posts))
	for _, p := range posts {
		msg, err := outbox.New(outbox.KindNoSaleJobStagedAlert, p.ID, outbox.JobAlertPayload{
			JobPostID: p.ID,
			ClientID:  p.ClientID,
		})
		if err != nil {
			w.logger.Error("Staged sweep: failed to build alert",
				slog.String("job_post_id", p.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		msgs = append(msgs, msg)
	}

	ids, err := w.store.EnqueueOutbox(ctx, msgs...)
	if err != nil {
		w.logger.Error("Staged sweep: failed to enqueue alerts", slog.String("error", err.Error()))
		return
	}

	published := outbox.PublishIDs(ctx, w.publisher, ids, w.logger)
	w.logger.Info("Staged sweep: queued no-sale alerts",
		slog.Int("job_posts", len(posts)),
		slog.Int("queued", len(ids)),
		slog.Int("published", published),
	)
}
