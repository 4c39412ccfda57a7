package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/admarket/moderation/pkg/domain"
)

// ErrCacheMiss is returned when a key is absent. Callers treat every other
// cache error the same way after logging it; the cache is never authoritative.
var ErrCacheMiss = errors.New("cache miss")

// PredictionKey is the cache key for a listing's synchronous prediction.
func PredictionKey(listingID int64) string {
	return fmt.Sprintf("prediction:%d", listingID)
}

// ResultKey is the cache key for a terminal moderation task result.
func ResultKey(taskID int64) string {
	return fmt.Sprintf("moderation_result:%d", taskID)
}

// CacheRepository holds JSON-serialized response payloads with independent
// TTLs per key family. Entries are a derived view of the ledger.
type CacheRepository interface {
	GetResult(ctx context.Context, taskID int64) (*domain.ModerationResultResponse, error)
	SetResult(ctx context.Context, taskID int64, res domain.ModerationResultResponse, ttl time.Duration) error
	GetPrediction(ctx context.Context, listingID int64) (*domain.Prediction, error)
	SetPrediction(ctx context.Context, listingID int64, p domain.Prediction, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type cacheRedisRepo struct {
	rdb *redis.Client
}

func NewCacheRepository(rdb *redis.Client) CacheRepository {
	return &cacheRedisRepo{rdb: rdb}
}

func (r *cacheRedisRepo) GetResult(ctx context.Context, taskID int64) (*domain.ModerationResultResponse, error) {
	js, err := r.rdb.Get(ctx, ResultKey(taskID)).Result()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET result: %w", err)
	}
	var res domain.ModerationResultResponse
	if err := json.Unmarshal([]byte(js), &res); err != nil {
		return nil, fmt.Errorf("unmarshal cached result: %w", err)
	}
	return &res, nil
}

func (r *cacheRedisRepo) SetResult(ctx context.Context, taskID int64, res domain.ModerationResultResponse, ttl time.Duration) error {
	js, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := r.rdb.Set(ctx, ResultKey(taskID), js, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET result: %w", err)
	}
	return nil
}

func (r *cacheRedisRepo) GetPrediction(ctx context.Context, listingID int64) (*domain.Prediction, error) {
	js, err := r.rdb.Get(ctx, PredictionKey(listingID)).Result()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET prediction: %w", err)
	}
	var p domain.Prediction
	if err := json.Unmarshal([]byte(js), &p); err != nil {
		return nil, fmt.Errorf("unmarshal cached prediction: %w", err)
	}
	return &p, nil
}

func (r *cacheRedisRepo) SetPrediction(ctx context.Context, listingID int64, p domain.Prediction, ttl time.Duration) error {
	js, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}
	if err := r.rdb.Set(ctx, PredictionKey(listingID), js, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET prediction: %w", err)
	}
	return nil
}

func (r *cacheRedisRepo) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis DEL: %w", err)
	}
	return nil
}
