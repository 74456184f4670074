package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/clinicaonline/turnos-api/pkg/messaging"
	"github.com/clinicaonline/turnos-api/pkg/metrics"
)

type RedisBroker struct {
	client   *redis.Client
	cb       *gobreaker.CircuitBreaker
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	consumer ConsumerConfig
}

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
}

// ConsumerConfig describes how a broker reads a stream. Every broker sharing
// Group splits the entries between them.
type ConsumerConfig struct {
	Group    string
	Consumer string
	// Block is how long one XREADGROUP waits for new entries
	Block time.Duration
	// ClaimIdle is how long an entry may stay unacknowledged before another
	// consumer takes it over
	ClaimIdle time.Duration
	// MaxDeliveries drops an entry after that many unacknowledged deliveries
	MaxDeliveries int64
	// MaxLen trims the stream approximately on every publish
	MaxLen int64
}

const payloadField = "message"

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.Group == "" {
		c.Group = "notificaciones"
	}
	if c.Consumer == "" {
		host, _ := os.Hostname()
		c.Consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if c.Block <= 0 {
		c.Block = 2 * time.Second
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = time.Minute
	}
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 5
	}
	if c.MaxLen <= 0 {
		c.MaxLen = 100000
	}
	return c
}

type Option func(*RedisBroker)

func WithConsumer(cfg ConsumerConfig) Option {
	return func(b *RedisBroker) {
		b.consumer = cfg.withDefaults()
	}
}

// NewClient parses cfg.URL, applies the pool settings and pings the server
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pooling
	opts.MaxRetries = cfg.MaxRetries
	opts.MinRetryBackoff = cfg.RetryBackoff
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisBroker publishes through client. The breaker opens after five
// consecutive publish failures and probes again after the timeout.
func NewRedisBroker(client *redis.Client, logger zerolog.Logger, m *metrics.Metrics, opts ...Option) *RedisBroker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-broker",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	b := &RedisBroker{
		client:   client,
		cb:       cb,
		logger:   logger,
		metrics:  m,
		consumer: ConsumerConfig{}.withDefaults(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish appends msg to the stream named channel. The entry survives until a
// consumer group acknowledges it, so nothing is lost while no worker runs.
func (b *RedisBroker) Publish(ctx context.Context, channel string, msg messaging.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	start := time.Now()
	_, err = b.cb.Execute(func() (interface{}, error) {
		return b.client.XAdd(ctx, &redis.XAddArgs{
			Stream: channel,
			MaxLen: b.consumer.MaxLen,
			Approx: true,
			Values: map[string]interface{}{payloadField: payload},
		}).Result()
	})
	b.observe("publish", start, err)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe joins the consumer group of channel, creating it from the start of
// the stream on first use. Entries left unacknowledged by a dead consumer are
// claimed again once they have been idle for ClaimIdle.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan messaging.Message, error) {
	start := time.Now()
	err := b.client.XGroupCreateMkStream(ctx, channel, b.consumer.Group, "0").Err()
	if err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP") {
		err = nil
	}
	b.observe("subscribe", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	msgChan := make(chan messaging.Message, 100)
	go func() {
		defer close(msgChan)

		var lastClaim time.Time
		for ctx.Err() == nil {
			if time.Since(lastClaim) >= b.consumer.ClaimIdle {
				lastClaim = time.Now()
				if !b.reclaim(ctx, channel, msgChan) {
					return
				}
			}

			streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    b.consumer.Group,
				Consumer: b.consumer.Consumer,
				Streams:  []string{channel, ">"},
				Count:    10,
				Block:    b.consumer.Block,
			}).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				b.observe("read", time.Now(), err)
				b.logger.Warn().Err(err).Str("stream", channel).Msg("Failed to read stream")
				select {
				case <-time.After(b.consumer.Block):
				case <-ctx.Done():
					return
				}
				continue
			}
			for _, stream := range streams {
				if !b.deliver(ctx, channel, stream.Messages, msgChan) {
					return
				}
			}
		}
	}()

	return msgChan, nil
}

// Ack removes msg from the pending list of the group
func (b *RedisBroker) Ack(ctx context.Context, channel string, msg messaging.Message) error {
	if msg.StreamID == "" {
		return nil
	}
	start := time.Now()
	err := b.client.XAck(ctx, channel, b.consumer.Group, msg.StreamID).Err()
	b.observe("ack", start, err)
	if err != nil {
		return fmt.Errorf("failed to ack %s on %s: %w", msg.StreamID, channel, err)
	}
	return nil
}

// reclaim takes over entries idle for ClaimIdle. It returns false once ctx is done.
func (b *RedisBroker) reclaim(ctx context.Context, channel string, out chan<- messaging.Message) bool {
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: channel,
		Group:  b.consumer.Group,
		Idle:   b.consumer.ClaimIdle,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Warn().Err(err).Str("stream", channel).Msg("Failed to list pending entries")
		}
		return ctx.Err() == nil
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		if p.RetryCount >= b.consumer.MaxDeliveries {
			b.logger.Error().Str("stream", channel).Str("entry_id", p.ID).Int64("deliveries", p.RetryCount).
				Msg("Dropping entry after too many deliveries")
			b.client.XAck(ctx, channel, b.consumer.Group, p.ID)
			continue
		}
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return true
	}

	start := time.Now()
	claimed, err := b.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   channel,
		Group:    b.consumer.Group,
		Consumer: b.consumer.Consumer,
		MinIdle:  b.consumer.ClaimIdle,
		Messages: ids,
	}).Result()
	b.observe("claim", start, err)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Warn().Err(err).Str("stream", channel).Msg("Failed to claim pending entries")
		}
		return ctx.Err() == nil
	}
	return b.deliver(ctx, channel, claimed, out)
}

func (b *RedisBroker) deliver(ctx context.Context, channel string, entries []redis.XMessage, out chan<- messaging.Message) bool {
	for _, entry := range entries {
		raw, _ := entry.Values[payloadField].(string)
		var msg messaging.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			b.logger.Warn().Err(err).Str("stream", channel).Str("entry_id", entry.ID).Msg("Dropping malformed message")
			b.client.XAck(ctx, channel, b.consumer.Group, entry.ID)
			continue
		}
		msg.StreamID = entry.ID
		select {
		case out <- msg:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

func (b *RedisBroker) observe(operation string, start time.Time, err error) {
	if b.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	b.metrics.RedisOperations.WithLabelValues(operation, status).Inc()
	b.metrics.RedisLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
