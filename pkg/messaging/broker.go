package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Channel is where every domain event of the clinic is published
const Channel = "clinica.eventos"

// Broker defines the interface for message brokers. A published message is
// delivered to one subscriber and redelivered until it is acknowledged.
type Broker interface {
	Publish(ctx context.Context, channel string, msg Message) error
	// Subscribe returns once the subscription is active. The channel is closed
	// when ctx is done or the broker is closed.
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)
	Ack(ctx context.Context, channel string, msg Message) error
	Close() error
}

// Message is the envelope of an outbox event on the wire
type Message struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
	// StreamID identifies the delivery for Ack, set by the broker on receive
	StreamID   string          `json:"-"`
}
