package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/admarket/moderation/pkg/domain"
)

func setupBus(t *testing.T) (context.Context, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return context.Background(), mr, rdb
}

func TestPublishConsumeOrdered(t *testing.T) {
	ctx, _, rdb := setupBus(t)
	pub := NewStreamPublisher(rdb, "moderation", "moderation_dlq")

	id1 := int64(11)
	if err := pub.Publish(ctx, domain.TaskMessage{ListingID: 1, TaskID: &id1}); err != nil {
		t.Fatalf("publish 1: %v", err)
	}
	if err := pub.Publish(ctx, domain.TaskMessage{ListingID: 2, RetryCount: 1}); err != nil {
		t.Fatalf("publish 2: %v", err)
	}

	cons, err := NewStreamConsumer(ctx, rdb, "moderation", "moderation-worker", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	defer cons.Close()

	d1, err := cons.Next(ctx)
	if err != nil {
		t.Fatalf("next 1: %v", err)
	}
	var m1 domain.TaskMessage
	if err := json.Unmarshal([]byte(d1.Payload), &m1); err != nil {
		t.Fatalf("decode 1: %v", err)
	}
	if m1.ListingID != 1 || m1.TaskID == nil || *m1.TaskID != 11 {
		t.Fatalf("messages must arrive in publish order, got %+v", m1)
	}
	if err := cons.Ack(ctx, d1); err != nil {
		t.Fatalf("ack 1: %v", err)
	}

	d2, err := cons.Next(ctx)
	if err != nil {
		t.Fatalf("next 2: %v", err)
	}
	var m2 domain.TaskMessage
	if err := json.Unmarshal([]byte(d2.Payload), &m2); err != nil {
		t.Fatalf("decode 2: %v", err)
	}
	if m2.ListingID != 2 || m2.RetryCount != 1 {
		t.Fatalf("unexpected second message: %+v", m2)
	}
}

func TestUnackedDeliveryIsReplayed(t *testing.T) {
	ctx, _, rdb := setupBus(t)
	pub := NewStreamPublisher(rdb, "moderation", "moderation_dlq")

	if err := pub.Publish(ctx, domain.TaskMessage{ListingID: 5}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	cons, err := NewStreamConsumer(ctx, rdb, "moderation", "moderation-worker", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	d, err := cons.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	// Simulate a crash before commit: no ack, new consumer joins.
	_ = cons.Close()

	cons2, err := NewStreamConsumer(ctx, rdb, "moderation", "moderation-worker", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("consumer 2: %v", err)
	}
	defer cons2.Close()

	replayed, err := cons2.Next(ctx)
	if err != nil {
		t.Fatalf("next after restart: %v", err)
	}
	if replayed.ID != d.ID || replayed.Payload != d.Payload {
		t.Fatalf("expected pending entry replay, got %+v vs %+v", replayed, d)
	}
	if err := cons2.Ack(ctx, replayed); err != nil {
		t.Fatalf("ack: %v", err)
	}
}

func TestPublishDeadLetter(t *testing.T) {
	ctx, _, rdb := setupBus(t)
	pub := NewStreamPublisher(rdb, "moderation", "moderation_dlq")

	dl := domain.DeadLetter{
		OriginalMessage: domain.TaskMessage{ListingID: 9, RetryCount: 2},
		Error:           "listing 9 not found",
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		RetryCount:      2,
	}
	if err := pub.PublishDeadLetter(ctx, dl); err != nil {
		t.Fatalf("publish dlq: %v", err)
	}

	n, err := rdb.XLen(ctx, "moderation_dlq").Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 dead letter, got %d", n)
	}

	entries, err := rdb.XRange(ctx, "moderation_dlq", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	var got domain.DeadLetter
	if err := json.Unmarshal([]byte(entries[0].Values["payload"].(string)), &got); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if got.OriginalMessage.ListingID != 9 || got.RetryCount != 2 || got.Error == "" {
		t.Fatalf("unexpected envelope: %+v", got)
	}
}

func TestNextHonorsContextCancel(t *testing.T) {
	ctx, _, rdb := setupBus(t)
	cons, err := NewStreamConsumer(ctx, rdb, "moderation", "moderation-worker", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	defer cons.Close()

	cctx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	if _, err := cons.Next(cctx); err == nil {
		t.Fatalf("expected context error on empty stream")
	}
}
