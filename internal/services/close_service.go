package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/admarket/moderation/internal/repository"
)

// CloseService withdraws a listing and purges every cache entry derived from
// it: its prediction and the result of every task ever created for it. Cache
// deletion is best-effort; the ledger rows stay behind for audit.
type CloseService interface {
	// Close returns true when the listing transitioned to closed now, false
	// when it was already closed.
	Close(ctx context.Context, listingID int64) (bool, error)
}

type closeService struct {
	ledger   repository.LedgerRepository
	listings repository.ListingRepository
	cache    repository.CacheRepository
	logger   *slog.Logger
}

func NewCloseService(ledger repository.LedgerRepository, listings repository.ListingRepository, cache repository.CacheRepository, logger *slog.Logger) CloseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &closeService{ledger: ledger, listings: listings, cache: cache, logger: logger}
}

func (s *closeService) Close(ctx context.Context, listingID int64) (bool, error) {
	closedNow, err := s.listings.Close(ctx, listingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, err
		}
		return false, fmt.Errorf("%w: close listing: %v", ErrLedgerUnavailable, err)
	}
	if !closedNow {
		return false, nil
	}

	s.purgeCaches(ctx, listingID)
	s.logger.Info("listing closed", "listing_id", listingID)
	return true, nil
}

func (s *closeService) purgeCaches(ctx context.Context, listingID int64) {
	keys := []string{repository.PredictionKey(listingID)}

	ids, err := s.ledger.TaskIDsForListing(ctx, listingID)
	if err != nil {
		// Still purge what we can address without the ledger.
		s.logger.Warn("enumerate tasks for cache purge failed", "listing_id", listingID, "err", err)
	}
	for _, id := range ids {
		keys = append(keys, repository.ResultKey(id))
	}

	for _, key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn("cache purge failed", "key", key, "err", err)
		}
	}
}
