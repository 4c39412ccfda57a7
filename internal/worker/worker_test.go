package worker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/admarket/moderation/internal/bus"
	"github.com/admarket/moderation/internal/classifier"
	"github.com/admarket/moderation/internal/repository"
	"github.com/admarket/moderation/pkg/domain"
)

type recordingPublisher struct {
	mu          sync.Mutex
	published   []domain.TaskMessage
	deadLetters []domain.DeadLetter
	failPublish bool
	failDLQ     bool
}

func (p *recordingPublisher) Publish(_ context.Context, msg domain.TaskMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failPublish {
		return context.DeadlineExceeded
	}
	p.published = append(p.published, msg)
	return nil
}

func (p *recordingPublisher) PublishDeadLetter(_ context.Context, dl domain.DeadLetter) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failDLQ {
		return context.DeadlineExceeded
	}
	p.deadLetters = append(p.deadLetters, dl)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) snapshot() ([]domain.TaskMessage, []domain.DeadLetter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.TaskMessage(nil), p.published...), append([]domain.DeadLetter(nil), p.deadLetters...)
}

type recordingConsumer struct {
	mu    sync.Mutex
	acked []string
}

func (c *recordingConsumer) Next(ctx context.Context) (*bus.Delivery, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *recordingConsumer) Ack(_ context.Context, d *bus.Delivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = append(c.acked, d.ID)
	return nil
}

func (c *recordingConsumer) Close() error { return nil }

func (c *recordingConsumer) ackedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.acked...)
}

type workerFixture struct {
	ctx      context.Context
	ledger   *repository.MemoryLedger
	listings *repository.MemoryListings
	pub      *recordingPublisher
	con      *recordingConsumer
	worker   *Worker
}

func setupWorker(t *testing.T, maxRetries int) *workerFixture {
	t.Helper()
	listings := repository.NewMemoryListings()
	listings.Add(domain.ListingFeatures{ListingID: 100, IsVerifiedSeller: true, ImagesQty: 12, Description: strings.Repeat("detail ", 60), Category: 25})
	listings.Add(domain.ListingFeatures{ListingID: 200, IsVerifiedSeller: false, ImagesQty: 0, Description: "", Category: 1})

	f := &workerFixture{
		ctx:      context.Background(),
		ledger:   repository.NewMemoryLedger(),
		listings: listings,
		pub:      &recordingPublisher{},
		con:      &recordingConsumer{},
	}
	f.worker = New(f.con, f.pub, f.ledger, f.listings, classifier.NewScorer(), maxRetries, 0, nil)
	return f
}

func delivery(t *testing.T, id string, msg domain.TaskMessage) *bus.Delivery {
	t.Helper()
	js, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return &bus.Delivery{ID: id, Payload: string(js)}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHandleCompletesTask(t *testing.T) {
	f := setupWorker(t, 3)
	task, _ := f.ledger.CreateTask(f.ctx, 200)

	f.worker.handle(f.ctx, delivery(t, "1-0", domain.TaskMessage{ListingID: 200, TaskID: &task.TaskID}))

	stored, err := f.ledger.GetTask(f.ctx, task.TaskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	if stored.IsViolation == nil || stored.Probability == nil {
		t.Fatalf("verdict missing: %+v", stored)
	}
	if *stored.IsViolation != (*stored.Probability >= classifier.ViolationThreshold) {
		t.Fatalf("verdict disagrees with probability: %+v", stored)
	}
	if ids := f.con.ackedIDs(); len(ids) != 1 || ids[0] != "1-0" {
		t.Fatalf("delivery not acked: %v", ids)
	}
}

func TestHandleResolvesNewestPendingWithoutTaskID(t *testing.T) {
	f := setupWorker(t, 3)
	older, _ := f.ledger.CreateTask(f.ctx, 100)
	newer, _ := f.ledger.CreateTask(f.ctx, 100)

	f.worker.handle(f.ctx, delivery(t, "1-0", domain.TaskMessage{ListingID: 100}))

	got, _ := f.ledger.GetTask(f.ctx, newer.TaskID)
	if got.Status != domain.StatusCompleted {
		t.Fatalf("newest pending task must be resolved, got %s", got.Status)
	}
	old, _ := f.ledger.GetTask(f.ctx, older.TaskID)
	if old.Status != domain.StatusPending {
		t.Fatalf("older task must stay pending, got %s", old.Status)
	}
}

func TestHandleRetriesWithIncrementedCounter(t *testing.T) {
	f := setupWorker(t, 3)
	task, _ := f.ledger.CreateTask(f.ctx, 300) // listing 300 has no stored features

	f.worker.handle(f.ctx, delivery(t, "1-0", domain.TaskMessage{ListingID: 300, TaskID: &task.TaskID}))

	waitFor(t, "retry republication", func() bool {
		pub, _ := f.pub.snapshot()
		return len(pub) == 1
	})
	pub, dlq := f.pub.snapshot()
	if pub[0].RetryCount != 1 || pub[0].ListingID != 300 {
		t.Fatalf("unexpected republished message: %+v", pub[0])
	}
	if len(dlq) != 0 {
		t.Fatalf("no dead letter expected on first failure")
	}

	stored, _ := f.ledger.GetTask(f.ctx, task.TaskID)
	if stored.Status != domain.StatusPending {
		t.Fatalf("row must stay pending while retries remain, got %s", stored.Status)
	}
	waitFor(t, "ack after republish", func() bool { return len(f.con.ackedIDs()) == 1 })
}

func TestHandleExhaustedBudgetGoesToDeadLetter(t *testing.T) {
	f := setupWorker(t, 3)
	task, _ := f.ledger.CreateTask(f.ctx, 300)

	// retry_count 2 with max_retries 3: the budget is spent.
	f.worker.handle(f.ctx, delivery(t, "9-0", domain.TaskMessage{ListingID: 300, TaskID: &task.TaskID, RetryCount: 2}))

	pub, dlq := f.pub.snapshot()
	if len(pub) != 0 {
		t.Fatalf("exhausted message must not be republished: %+v", pub)
	}
	if len(dlq) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(dlq))
	}
	dl := dlq[0]
	if dl.OriginalMessage.ListingID != 300 || dl.RetryCount != 2 || dl.Error == "" {
		t.Fatalf("unexpected envelope: %+v", dl)
	}
	if _, err := time.Parse(time.RFC3339, dl.Timestamp); err != nil {
		t.Fatalf("timestamp not RFC3339: %q", dl.Timestamp)
	}

	stored, _ := f.ledger.GetTask(f.ctx, task.TaskID)
	if stored.Status != domain.StatusFailed || stored.ErrorMessage == "" {
		t.Fatalf("row must be failed with a cause, got %+v", stored)
	}
	if ids := f.con.ackedIDs(); len(ids) != 1 {
		t.Fatalf("exhausted delivery must be acked: %v", ids)
	}
}

func TestHandleUndecodablePayloadDeadLetters(t *testing.T) {
	f := setupWorker(t, 3)

	f.worker.handle(f.ctx, &bus.Delivery{ID: "3-0", Payload: "{not json"})

	_, dlq := f.pub.snapshot()
	if len(dlq) != 1 || dlq[0].RawPayload != "{not json" {
		t.Fatalf("verbatim payload must be preserved in the envelope: %+v", dlq)
	}
	if dlq[0].Error == "" {
		t.Fatalf("decode failure must be recorded in the envelope")
	}
	if ids := f.con.ackedIDs(); len(ids) != 1 {
		t.Fatalf("undecodable delivery must be acked: %v", ids)
	}
}

func TestHandleRedeliveryOfTerminalTask(t *testing.T) {
	f := setupWorker(t, 3)
	task, _ := f.ledger.CreateTask(f.ctx, 200)
	_ = f.ledger.CompleteTask(f.ctx, task.TaskID, true, 0.9)

	f.worker.handle(f.ctx, delivery(t, "4-0", domain.TaskMessage{ListingID: 200, TaskID: &task.TaskID}))

	pub, dlq := f.pub.snapshot()
	if len(pub) != 0 || len(dlq) != 0 {
		t.Fatalf("redelivery of a terminal task publishes nothing")
	}
	stored, _ := f.ledger.GetTask(f.ctx, task.TaskID)
	if *stored.Probability != 0.9 {
		t.Fatalf("terminal verdict must not change: %+v", stored)
	}
	if ids := f.con.ackedIDs(); len(ids) != 1 {
		t.Fatalf("redelivery must be acked: %v", ids)
	}
}

func TestHandleNoPendingTaskIsRetried(t *testing.T) {
	f := setupWorker(t, 3)

	// Listing 100 exists but has no pending ledger row to resolve.
	f.worker.handle(f.ctx, delivery(t, "5-0", domain.TaskMessage{ListingID: 100}))

	waitFor(t, "retry republication", func() bool {
		pub, _ := f.pub.snapshot()
		return len(pub) == 1
	})
	pub, dlq := f.pub.snapshot()
	if pub[0].ListingID != 100 || pub[0].RetryCount != 1 {
		t.Fatalf("unresolvable message must be republished with the counter bumped, got %+v", pub[0])
	}
	if len(dlq) != 0 {
		t.Fatalf("no dead letter expected while budget remains")
	}
	waitFor(t, "ack after republish", func() bool { return len(f.con.ackedIDs()) == 1 })
}

func TestHandleNoPendingTaskExhaustedGoesToDeadLetter(t *testing.T) {
	f := setupWorker(t, 3)

	f.worker.handle(f.ctx, delivery(t, "8-0", domain.TaskMessage{ListingID: 100, RetryCount: 2}))

	pub, dlq := f.pub.snapshot()
	if len(pub) != 0 {
		t.Fatalf("exhausted message must not be republished: %+v", pub)
	}
	if len(dlq) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(dlq))
	}
	dl := dlq[0]
	if dl.OriginalMessage.ListingID != 100 || dl.RetryCount != 2 || dl.Error == "" {
		t.Fatalf("unexpected envelope: %+v", dl)
	}
	if ids := f.con.ackedIDs(); len(ids) != 1 {
		t.Fatalf("exhausted delivery must be acked: %v", ids)
	}
}

func TestRepublishFailureLeavesDeliveryUnacked(t *testing.T) {
	f := setupWorker(t, 3)
	f.pub.failPublish = true
	task, _ := f.ledger.CreateTask(f.ctx, 300)

	f.worker.handle(f.ctx, delivery(t, "6-0", domain.TaskMessage{ListingID: 300, TaskID: &task.TaskID}))
	f.worker.sched.Drain()

	if ids := f.con.ackedIDs(); len(ids) != 0 {
		t.Fatalf("failed republish must leave the delivery pending, acked %v", ids)
	}
}

func TestDeadLetterPublishFailureStillAcksAndFails(t *testing.T) {
	f := setupWorker(t, 1)
	f.pub.failDLQ = true
	task, _ := f.ledger.CreateTask(f.ctx, 300)

	f.worker.handle(f.ctx, delivery(t, "7-0", domain.TaskMessage{ListingID: 300, TaskID: &task.TaskID}))

	stored, _ := f.ledger.GetTask(f.ctx, task.TaskID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("row must be failed despite dead-letter publish failure, got %s", stored.Status)
	}
	if ids := f.con.ackedIDs(); len(ids) != 1 {
		t.Fatalf("delivery must be acked despite dead-letter publish failure: %v", ids)
	}
}
