package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/admarket/moderation/internal/metrics"
	"github.com/admarket/moderation/pkg/domain"
)

const payloadField = "payload"

type streamPublisher struct {
	rdb       *redis.Client
	stream    string
	dlqStream string
}

func NewStreamPublisher(rdb *redis.Client, stream, dlqStream string) Publisher {
	return &streamPublisher{rdb: rdb, stream: stream, dlqStream: dlqStream}
}

func (p *streamPublisher) Publish(ctx context.Context, msg domain.TaskMessage) error {
	js, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal task message: %w", err)
	}
	if err := p.add(ctx, p.stream, js); err != nil {
		metrics.BusPublishFailuresTotal.WithLabelValues("primary").Inc()
		return err
	}
	return nil
}

func (p *streamPublisher) PublishDeadLetter(ctx context.Context, dl domain.DeadLetter) error {
	js, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := p.add(ctx, p.dlqStream, js); err != nil {
		metrics.BusPublishFailuresTotal.WithLabelValues("dlq").Inc()
		return err
	}
	metrics.TaskDeadLetteredTotal.Inc()
	return nil
}

func (p *streamPublisher) add(ctx context.Context, stream string, payload []byte) error {
	err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{payloadField: string(payload)},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis XADD %s: %w", stream, err)
	}
	return nil
}

func (p *streamPublisher) Close() error { return nil }

type streamConsumer struct {
	rdb    *redis.Client
	stream string
	group  string
	name   string
	block  time.Duration

	// backlogDrained flips once the consumer's own pending entries (left
	// unacked by a previous crash) have been replayed.
	backlogDrained bool
}

// NewStreamConsumer joins (creating if needed) the consumer group on the
// primary stream. The group starts at the beginning of the stream so that
// messages published before the first worker came up are not lost.
func NewStreamConsumer(ctx context.Context, rdb *redis.Client, stream, group string, block time.Duration) (Consumer, error) {
	err := rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("redis XGROUP CREATE: %w", err)
	}
	if block <= 0 {
		block = 5 * time.Second
	}
	return &streamConsumer{
		rdb:    rdb,
		stream: stream,
		group:  group,
		name:   consumerName(),
		block:  block,
	}, nil
}

// consumerName is stable per host so a restarted worker re-reads the pending
// entries it crashed on.
func consumerName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

func (c *streamConsumer) Next(ctx context.Context) (*Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cursor := ">"
		if !c.backlogDrained {
			cursor = "0"
		}
		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{c.stream, cursor},
			Count:    1,
			Block:    c.block,
		}).Result()
		if err == redis.Nil {
			c.backlogDrained = true
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis XREADGROUP: %w", err)
		}
		if len(res) == 0 || len(res[0].Messages) == 0 {
			c.backlogDrained = true
			continue
		}

		m := res[0].Messages[0]
		payload, _ := m.Values[payloadField].(string)
		return &Delivery{ID: m.ID, Payload: payload}, nil
	}
}

func (c *streamConsumer) Ack(ctx context.Context, d *Delivery) error {
	if err := c.rdb.XAck(ctx, c.stream, c.group, d.ID).Err(); err != nil {
		return fmt.Errorf("redis XACK: %w", err)
	}
	return nil
}

func (c *streamConsumer) Close() error { return nil }
