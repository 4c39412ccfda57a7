package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/admarket/moderation/internal/classifier"
	"github.com/admarket/moderation/internal/metrics"
	"github.com/admarket/moderation/internal/repository"
	"github.com/admarket/moderation/pkg/domain"
)

// PredictService serves the synchronous classification paths: a stateless
// score of inline attributes and a cache-aside score of a stored listing.
type PredictService interface {
	Predict(f domain.ListingFeatures) domain.Prediction
	PredictListing(ctx context.Context, listingID int64) (*domain.Prediction, error)
}

type predictService struct {
	scorer        classifier.Scorer
	listings      repository.ListingRepository
	cache         repository.CacheRepository
	predictionTTL time.Duration
	logger        *slog.Logger
}

func NewPredictService(scorer classifier.Scorer, listings repository.ListingRepository, cache repository.CacheRepository, predictionTTL time.Duration, logger *slog.Logger) PredictService {
	if logger == nil {
		logger = slog.Default()
	}
	return &predictService{
		scorer:        scorer,
		listings:      listings,
		cache:         cache,
		predictionTTL: predictionTTL,
		logger:        logger,
	}
}

func (s *predictService) Predict(f domain.ListingFeatures) domain.Prediction {
	p := s.scorer.Score(f)
	return domain.Prediction{IsViolation: classifier.IsViolation(p), Probability: p}
}

func (s *predictService) PredictListing(ctx context.Context, listingID int64) (*domain.Prediction, error) {
	cached, err := s.cache.GetPrediction(ctx, listingID)
	if err == nil {
		metrics.CacheRequestsTotal.WithLabelValues("prediction", "hit").Inc()
		return cached, nil
	}
	if errors.Is(err, repository.ErrCacheMiss) {
		metrics.CacheRequestsTotal.WithLabelValues("prediction", "miss").Inc()
	} else {
		metrics.CacheRequestsTotal.WithLabelValues("prediction", "error").Inc()
		s.logger.Warn("prediction cache read failed", "listing_id", listingID, "err", err)
	}

	f, err := s.listings.GetFeatures(ctx, listingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: listing features: %v", ErrLedgerUnavailable, err)
	}

	p := s.Predict(*f)
	if err := s.cache.SetPrediction(ctx, listingID, p, s.predictionTTL); err != nil {
		s.logger.Warn("prediction cache write failed", "listing_id", listingID, "err", err)
	}
	return &p, nil
}
