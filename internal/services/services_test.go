package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/admarket/moderation/internal/repository"
	"github.com/admarket/moderation/pkg/domain"
)

type stubPublisher struct {
	mu          sync.Mutex
	published   []domain.TaskMessage
	deadLetters []domain.DeadLetter
	failPublish bool
}

func (p *stubPublisher) Publish(_ context.Context, msg domain.TaskMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failPublish {
		return errors.New("broker down")
	}
	p.published = append(p.published, msg)
	return nil
}

func (p *stubPublisher) PublishDeadLetter(_ context.Context, dl domain.DeadLetter) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deadLetters = append(p.deadLetters, dl)
	return nil
}

func (p *stubPublisher) Close() error { return nil }

type fixture struct {
	ctx      context.Context
	ledger   *repository.MemoryLedger
	listings *repository.MemoryListings
	cache    repository.CacheRepository
	redis    *miniredis.Miniredis
	pub      *stubPublisher
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	listings := repository.NewMemoryListings()
	listings.Add(domain.ListingFeatures{ListingID: 100, IsVerifiedSeller: true, ImagesQty: 10, Description: "well documented listing", Category: 20})
	listings.Add(domain.ListingFeatures{ListingID: 200, IsVerifiedSeller: false, ImagesQty: 0, Description: "", Category: 1})

	return &fixture{
		ctx:      context.Background(),
		ledger:   repository.NewMemoryLedger(),
		listings: listings,
		cache:    repository.NewCacheRepository(rdb),
		redis:    mr,
		pub:      &stubPublisher{},
	}
}

// countingLedger tracks reads so tests can prove a cache hit skipped the
// ledger entirely.
type countingLedger struct {
	repository.LedgerRepository
	mu   sync.Mutex
	gets int
}

func (c *countingLedger) GetTask(ctx context.Context, taskID int64) (*domain.ModerationTask, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.LedgerRepository.GetTask(ctx, taskID)
}

func (c *countingLedger) getCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets
}
