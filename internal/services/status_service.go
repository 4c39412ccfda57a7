package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/admarket/moderation/internal/metrics"
	"github.com/admarket/moderation/internal/repository"
	"github.com/admarket/moderation/pkg/domain"
)

// StatusService answers "what is the state of task T" cache-first. Only
// completed results are ever written to the cache: pending rows still change
// and failed rows are inspected by operators, so neither may go stale behind
// a cached copy.
type StatusService interface {
	GetStatus(ctx context.Context, taskID int64) (*domain.ModerationResultResponse, error)
}

type statusService struct {
	ledger    repository.LedgerRepository
	cache     repository.CacheRepository
	resultTTL time.Duration
	logger    *slog.Logger
}

func NewStatusService(ledger repository.LedgerRepository, cache repository.CacheRepository, resultTTL time.Duration, logger *slog.Logger) StatusService {
	if logger == nil {
		logger = slog.Default()
	}
	return &statusService{ledger: ledger, cache: cache, resultTTL: resultTTL, logger: logger}
}

func (s *statusService) GetStatus(ctx context.Context, taskID int64) (*domain.ModerationResultResponse, error) {
	cached, err := s.cache.GetResult(ctx, taskID)
	if err == nil {
		metrics.CacheRequestsTotal.WithLabelValues("moderation_result", "hit").Inc()
		return cached, nil
	}
	if errors.Is(err, repository.ErrCacheMiss) {
		metrics.CacheRequestsTotal.WithLabelValues("moderation_result", "miss").Inc()
	} else {
		metrics.CacheRequestsTotal.WithLabelValues("moderation_result", "error").Inc()
		s.logger.Warn("result cache read failed", "task_id", taskID, "err", err)
	}

	t, err := s.ledger.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: get task: %v", ErrLedgerUnavailable, err)
	}

	res := &domain.ModerationResultResponse{
		TaskID:      t.TaskID,
		Status:      t.Status,
		IsViolation: t.IsViolation,
		Probability: t.Probability,
	}

	if t.Status == domain.StatusCompleted {
		if err := s.cache.SetResult(ctx, taskID, *res, s.resultTTL); err != nil {
			s.logger.Warn("result cache write failed", "task_id", taskID, "err", err)
		}
	}
	return res, nil
}
