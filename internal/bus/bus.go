// Package bus provides the ordered, durable, at-least-once message channel
// between the enqueue path and the moderation worker. It is backed by Redis
// Streams: one primary stream, one dead-letter stream, and a consumer group
// with manual acknowledgement.
package bus

import (
	"context"

	"github.com/admarket/moderation/pkg/domain"
)

// Delivery is one consumed stream entry. Payload is the raw JSON; decoding is
// the consumer's business so that undecodable entries can still be acked and
// dead-lettered.
type Delivery struct {
	ID      string
	Payload string
}

// Publisher appends messages to the primary or dead-letter stream.
type Publisher interface {
	Publish(ctx context.Context, msg domain.TaskMessage) error
	PublishDeadLetter(ctx context.Context, dl domain.DeadLetter) error
	Close() error
}

// Consumer pulls deliveries off the primary stream for a consumer group.
// A delivery stays pending (and is redelivered after a crash) until Ack.
type Consumer interface {
	Next(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Close() error
}
