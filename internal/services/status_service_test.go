package services

import (
	"errors"
	"testing"
	"time"

	"github.com/admarket/moderation/internal/repository"
	"github.com/admarket/moderation/pkg/domain"
)

func TestStatusPendingNotCached(t *testing.T) {
	f := setupFixture(t)
	task, _ := f.ledger.CreateTask(f.ctx, 100)
	svc := NewStatusService(f.ledger, f.cache, time.Minute, nil)

	res, err := svc.GetStatus(f.ctx, task.TaskID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if res.Status != domain.StatusPending || res.IsViolation != nil || res.Probability != nil {
		t.Fatalf("unexpected pending response: %+v", res)
	}
	if f.redis.Exists(repository.ResultKey(task.TaskID)) {
		t.Fatalf("pending results must not be cached")
	}
}

func TestStatusFailedNotCached(t *testing.T) {
	f := setupFixture(t)
	task, _ := f.ledger.CreateTask(f.ctx, 100)
	_ = f.ledger.FailTask(f.ctx, task.TaskID, "classifier exploded")
	svc := NewStatusService(f.ledger, f.cache, time.Minute, nil)

	res, err := svc.GetStatus(f.ctx, task.TaskID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if res.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if f.redis.Exists(repository.ResultKey(task.TaskID)) {
		t.Fatalf("failed results must not be cached")
	}
}

func TestStatusCompletedCachedAndServedFromCache(t *testing.T) {
	f := setupFixture(t)
	task, _ := f.ledger.CreateTask(f.ctx, 100)
	_ = f.ledger.CompleteTask(f.ctx, task.TaskID, true, 0.91)

	counted := &countingLedger{LedgerRepository: f.ledger}
	svc := NewStatusService(counted, f.cache, time.Minute, nil)

	first, err := svc.GetStatus(f.ctx, task.TaskID)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if first.IsViolation == nil || !*first.IsViolation || *first.Probability != 0.91 {
		t.Fatalf("unexpected verdict: %+v", first)
	}
	if !f.redis.Exists(repository.ResultKey(task.TaskID)) {
		t.Fatalf("completed result must be cached")
	}

	second, err := svc.GetStatus(f.ctx, task.TaskID)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if counted.getCount() != 1 {
		t.Fatalf("cache hit must not touch the ledger, got %d reads", counted.getCount())
	}
	if *second.Probability != *first.Probability || *second.IsViolation != *first.IsViolation {
		t.Fatalf("verdict changed between reads: %+v vs %+v", first, second)
	}
}

func TestStatusUnknownTask(t *testing.T) {
	f := setupFixture(t)
	svc := NewStatusService(f.ledger, f.cache, time.Minute, nil)

	if _, err := svc.GetStatus(f.ctx, 12345); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusDegradesWhenCacheDown(t *testing.T) {
	f := setupFixture(t)
	task, _ := f.ledger.CreateTask(f.ctx, 100)
	_ = f.ledger.CompleteTask(f.ctx, task.TaskID, false, 0.12)
	f.redis.Close()
	svc := NewStatusService(f.ledger, f.cache, time.Minute, nil)

	res, err := svc.GetStatus(f.ctx, task.TaskID)
	if err != nil {
		t.Fatalf("cache failure must degrade to ledger-only, got %v", err)
	}
	if res.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}
}
