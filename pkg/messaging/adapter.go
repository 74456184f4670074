package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// HandlerFunc handles one message of a given type
type HandlerFunc func(ctx context.Context, msg Message) error

// Dispatcher routes messages from a broker subscription to handlers by type
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for msgType, replacing any previous handler
func (d *Dispatcher) Handle(msgType string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[msgType] = fn
}

// HandleJSON registers a handler that receives the payload decoded into T
func HandleJSON[T any](d *Dispatcher, msgType string, fn func(ctx context.Context, payload T) error) {
	d.Handle(msgType, func(ctx context.Context, msg Message) error {
		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", msg.Type, err)
		}
		return fn(ctx, payload)
	})
}

// Dispatch calls the handler registered for msg.Type. Unknown types are ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	d.mu.RLock()
	fn, ok := d.handlers[msg.Type]
	d.mu.RUnlock()
	if !ok {
		return nil
	}
	return fn(ctx, msg)
}

// Run subscribes to channel and dispatches until ctx is done. Handled messages
// are acknowledged; a failed one is logged and left for redelivery.
func (d *Dispatcher) Run(ctx context.Context, broker Broker, channel string) error {
	msgs, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := d.Dispatch(ctx, msg); err != nil {
				log.Error().Err(err).
					Str("message_id", msg.ID.String()).
					Str("message_type", msg.Type).
					Msg("Failed to handle message")
				continue
			}
			if err := broker.Ack(ctx, channel, msg); err != nil {
				log.Warn().Err(err).Str("message_id", msg.ID.String()).Msg("Failed to acknowledge message")
			}
		}
	}
}
