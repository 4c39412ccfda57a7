// Package worker consumes the moderation stream, scores listings and records
// verdicts in the task ledger. Failed messages are republished with an
// incremented retry counter; once the budget is spent they are wrapped in a
// dead-letter envelope and the task row is marked failed.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/admarket/moderation/internal/bus"
	"github.com/admarket/moderation/internal/classifier"
	"github.com/admarket/moderation/internal/metrics"
	"github.com/admarket/moderation/internal/repository"
	"github.com/admarket/moderation/pkg/domain"
)

type Worker struct {
	consumer   bus.Consumer
	publisher  bus.Publisher
	ledger     repository.LedgerRepository
	listings   repository.ListingRepository
	scorer     classifier.Scorer
	maxRetries int
	retryDelay time.Duration
	sched      *Scheduler
	logger     *slog.Logger
}

func New(consumer bus.Consumer, publisher bus.Publisher, ledger repository.LedgerRepository, listings repository.ListingRepository, scorer classifier.Scorer, maxRetries int, retryDelay time.Duration, logger *slog.Logger) *Worker {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		consumer:   consumer,
		publisher:  publisher,
		ledger:     ledger,
		listings:   listings,
		scorer:     scorer,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		sched:      NewScheduler(),
		logger:     logger,
	}
}

// Run consumes until ctx is canceled, then drains scheduled republications.
// Deliveries whose republication never fired stay unacked and are redelivered
// to the group.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "max_retries", w.maxRetries, "retry_delay", w.retryDelay)
	defer w.sched.Drain()

	for {
		d, err := w.consumer.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping")
				return nil
			}
			w.logger.Error("consume failed", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		w.handle(ctx, d)
	}
}

func (w *Worker) handle(ctx context.Context, d *bus.Delivery) {
	var msg domain.TaskMessage
	if err := json.Unmarshal([]byte(d.Payload), &msg); err != nil {
		// No retry counter to honor; route straight to the dead-letter
		// stream with the verbatim payload preserved for replay.
		w.deadLetterRaw(ctx, d, fmt.Sprintf("undecodable payload: %v", err))
		return
	}

	// An unresolvable task is a message failure like any other: it burns the
	// retry budget and ends up dead-lettered with no ledger row to update.
	// Redeliveries of already-resolved tasks are recognized by the terminal
	// check below, not here.
	task, err := w.resolveTask(ctx, msg)
	if err != nil {
		w.fail(ctx, d, msg, nil, fmt.Sprintf("resolve task: %v", err))
		return
	}

	features, err := w.listings.GetFeatures(ctx, msg.ListingID)
	if err != nil {
		w.fail(ctx, d, msg, task, fmt.Sprintf("listing features: %v", err))
		return
	}

	p := w.scorer.Score(*features)
	verdict := classifier.IsViolation(p)

	if err := w.ledger.CompleteTask(ctx, task.TaskID, verdict, p); err != nil {
		if errors.Is(err, repository.ErrTerminal) {
			// Redelivery of an already-resolved task.
			w.logger.Info("task already terminal", "task_id", task.TaskID, "delivery_id", d.ID)
			w.ack(ctx, d)
			return
		}
		w.fail(ctx, d, msg, task, fmt.Sprintf("complete task: %v", err))
		return
	}

	metrics.TaskCompletedTotal.WithLabelValues(string(domain.StatusCompleted)).Inc()
	metrics.TaskProcessingLatencySeconds.WithLabelValues(string(domain.StatusCompleted)).
		Observe(time.Since(task.CreatedAt).Seconds())
	w.logger.Info("task completed",
		"task_id", task.TaskID,
		"listing_id", msg.ListingID,
		"is_violation", verdict,
		"probability", p,
	)
	w.ack(ctx, d)
}

// resolveTask finds the ledger row this message belongs to. Messages from
// older publishers carry no task id; the newest pending task for the listing
// is used instead.
func (w *Worker) resolveTask(ctx context.Context, msg domain.TaskMessage) (*domain.ModerationTask, error) {
	if msg.TaskID != nil {
		return w.ledger.GetTask(ctx, *msg.TaskID)
	}
	return w.ledger.LatestPendingForListing(ctx, msg.ListingID)
}

// fail routes a processing failure through the retry budget: republish with
// the counter incremented while budget remains, dead-letter otherwise.
func (w *Worker) fail(ctx context.Context, d *bus.Delivery, msg domain.TaskMessage, task *domain.ModerationTask, cause string) {
	if msg.RetryCount < w.maxRetries-1 {
		w.scheduleRetry(d, msg, cause)
		return
	}
	w.deadLetter(ctx, d, msg, task, cause)
}

// scheduleRetry republishes the message with retry_count+1 after the retry
// delay and acks the original delivery only once the republication landed.
// If the republication fails (or never fires), the delivery stays pending and
// the consumer group redelivers it.
func (w *Worker) scheduleRetry(d *bus.Delivery, msg domain.TaskMessage, cause string) {
	next := msg.WithRetry(msg.RetryCount + 1)
	w.logger.Warn("task attempt failed, retrying",
		"listing_id", msg.ListingID,
		"retry_count", next.RetryCount,
		"delay", w.retryDelay,
		"cause", cause,
	)
	metrics.TaskRetriedTotal.Inc()

	accepted := w.sched.Schedule(w.retryDelay, func() {
		if err := w.publisher.Publish(context.Background(), next); err != nil {
			w.logger.Error("retry republish failed", "listing_id", next.ListingID, "err", err)
			return
		}
		w.ack(context.Background(), d)
	})
	if !accepted {
		w.logger.Warn("scheduler draining, retry left for redelivery", "listing_id", msg.ListingID, "delivery_id", d.ID)
	}
}

// deadLetter wraps the exhausted message, marks the task failed when one is
// known and acks the delivery. A dead-letter publish failure is logged but
// does not block the ack; the ledger row already records the failure.
func (w *Worker) deadLetter(ctx context.Context, d *bus.Delivery, msg domain.TaskMessage, task *domain.ModerationTask, cause string) {
	dl := domain.DeadLetter{
		OriginalMessage: msg,
		Error:           cause,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		RetryCount:      msg.RetryCount,
	}
	w.emitDeadLetter(ctx, d, dl, task, cause)
}

// deadLetterRaw handles entries that never decoded into a TaskMessage: the
// envelope carries the verbatim payload instead of a parsed message.
func (w *Worker) deadLetterRaw(ctx context.Context, d *bus.Delivery, cause string) {
	dl := domain.DeadLetter{
		RawPayload: d.Payload,
		Error:      cause,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	w.emitDeadLetter(ctx, d, dl, nil, cause)
}

func (w *Worker) emitDeadLetter(ctx context.Context, d *bus.Delivery, dl domain.DeadLetter, task *domain.ModerationTask, cause string) {
	if err := w.publisher.PublishDeadLetter(ctx, dl); err != nil {
		w.logger.Error("dead-letter publish failed", "listing_id", dl.OriginalMessage.ListingID, "err", err)
	}

	if task != nil {
		if err := w.ledger.FailTask(ctx, task.TaskID, cause); err != nil && !errors.Is(err, repository.ErrTerminal) {
			w.logger.Error("mark task failed", "task_id", task.TaskID, "err", err)
		}
		metrics.TaskProcessingLatencySeconds.WithLabelValues(string(domain.StatusFailed)).
			Observe(time.Since(task.CreatedAt).Seconds())
	}
	metrics.TaskCompletedTotal.WithLabelValues(string(domain.StatusFailed)).Inc()
	w.logger.Error("task dead-lettered",
		"listing_id", dl.OriginalMessage.ListingID,
		"retry_count", dl.RetryCount,
		"cause", cause,
	)
	w.ack(ctx, d)
}

func (w *Worker) ack(ctx context.Context, d *bus.Delivery) {
	if err := w.consumer.Ack(ctx, d); err != nil {
		w.logger.Error("ack failed", "delivery_id", d.ID, "err", err)
	}
}
