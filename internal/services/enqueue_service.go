package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/admarket/moderation/internal/bus"
	"github.com/admarket/moderation/internal/metrics"
	"github.com/admarket/moderation/internal/repository"
	"github.com/admarket/moderation/pkg/domain"
)

// EnqueueService accepts a moderation request: it validates the listing,
// records a pending ledger row and hands the task to the bus.
type EnqueueService interface {
	Enqueue(ctx context.Context, listingID int64) (*domain.ModerationTask, error)
}

type enqueueService struct {
	ledger    repository.LedgerRepository
	listings  repository.ListingRepository
	publisher bus.Publisher
	logger    *slog.Logger
}

func NewEnqueueService(ledger repository.LedgerRepository, listings repository.ListingRepository, publisher bus.Publisher, logger *slog.Logger) EnqueueService {
	if logger == nil {
		logger = slog.Default()
	}
	return &enqueueService{ledger: ledger, listings: listings, publisher: publisher, logger: logger}
}

func (s *enqueueService) Enqueue(ctx context.Context, listingID int64) (*domain.ModerationTask, error) {
	ok, err := s.listings.Exists(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing lookup: %v", ErrLedgerUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: listing %d", repository.ErrNotFound, listingID)
	}

	task, err := s.ledger.CreateTask(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("%w: create task: %v", ErrLedgerUnavailable, err)
	}

	msg := domain.TaskMessage{ListingID: listingID, TaskID: &task.TaskID}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		// The row stays behind as an auditable record of the attempt.
		if ferr := s.ledger.FailTask(ctx, task.TaskID, "queue publish failed: "+err.Error()); ferr != nil &&
			!errors.Is(ferr, repository.ErrTerminal) {
			s.logger.Error("mark task failed after publish error", "task_id", task.TaskID, "err", ferr)
		}
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	metrics.TaskEnqueuedTotal.Inc()
	s.logger.Info("moderation task enqueued", "task_id", task.TaskID, "listing_id", listingID)
	return task, nil
}
