package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/admarket/moderation/pkg/domain"
)

// MemoryLedger is an in-memory LedgerRepository for tests and local runs
// without Postgres. Not for production use.
type MemoryLedger struct {
	mu     sync.RWMutex
	nextID int64
	tasks  map[int64]*domain.ModerationTask
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{tasks: make(map[int64]*domain.ModerationTask)}
}

func (m *MemoryLedger) CreateTask(_ context.Context, listingID int64) (*domain.ModerationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := &domain.ModerationTask{
		TaskID:    m.nextID,
		ListingID: listingID,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	m.tasks[t.TaskID] = t
	return copyTask(t), nil
}

func (m *MemoryLedger) CompleteTask(_ context.Context, taskID int64, isViolation bool, probability float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: task", ErrNotFound)
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: task %d is %s", ErrTerminal, taskID, t.Status)
	}
	now := time.Now().UTC()
	t.Status = domain.StatusCompleted
	t.IsViolation = &isViolation
	t.Probability = &probability
	t.ErrorMessage = ""
	t.ProcessedAt = &now
	return nil
}

func (m *MemoryLedger) FailTask(_ context.Context, taskID int64, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: task", ErrNotFound)
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: task %d is %s", ErrTerminal, taskID, t.Status)
	}
	now := time.Now().UTC()
	t.Status = domain.StatusFailed
	t.ErrorMessage = errMsg
	t.ProcessedAt = &now
	return nil
}

func (m *MemoryLedger) GetTask(_ context.Context, taskID int64) (*domain.ModerationTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: task", ErrNotFound)
	}
	return copyTask(t), nil
}

func (m *MemoryLedger) LatestPendingForListing(_ context.Context, listingID int64) (*domain.ModerationTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.ModerationTask
	for _, t := range m.tasks {
		if t.ListingID != listingID || t.Status != domain.StatusPending {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) ||
			(t.CreatedAt.Equal(latest.CreatedAt) && t.TaskID > latest.TaskID) {
			latest = t
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no pending task for listing %d", ErrNotFound, listingID)
	}
	return copyTask(latest), nil
}

func (m *MemoryLedger) TaskIDsForListing(_ context.Context, listingID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []int64
	for id := int64(1); id <= m.nextID; id++ {
		if t, ok := m.tasks[id]; ok && t.ListingID == listingID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func copyTask(t *domain.ModerationTask) *domain.ModerationTask {
	cp := *t
	if t.IsViolation != nil {
		v := *t.IsViolation
		cp.IsViolation = &v
	}
	if t.Probability != nil {
		p := *t.Probability
		cp.Probability = &p
	}
	if t.ProcessedAt != nil {
		ts := *t.ProcessedAt
		cp.ProcessedAt = &ts
	}
	return &cp
}

// MemoryListings is an in-memory ListingRepository for tests.
type MemoryListings struct {
	mu       sync.RWMutex
	listings map[int64]*memoryListing
}

type memoryListing struct {
	features domain.ListingFeatures
	closed   bool
}

func NewMemoryListings() *MemoryListings {
	return &MemoryListings{listings: make(map[int64]*memoryListing)}
}

// Add registers an open listing with the given features.
func (m *MemoryListings) Add(f domain.ListingFeatures) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[f.ListingID] = &memoryListing{features: f}
}

func (m *MemoryListings) GetFeatures(_ context.Context, listingID int64) (*domain.ListingFeatures, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[listingID]
	if !ok || l.closed {
		return nil, fmt.Errorf("%w: listing %d", ErrNotFound, listingID)
	}
	f := l.features
	return &f, nil
}

func (m *MemoryListings) Exists(_ context.Context, listingID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[listingID]
	return ok && !l.closed, nil
}

func (m *MemoryListings) Close(_ context.Context, listingID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[listingID]
	if !ok {
		return false, fmt.Errorf("%w: listing %d", ErrNotFound, listingID)
	}
	if l.closed {
		return false, nil
	}
	l.closed = true
	return true, nil
}
