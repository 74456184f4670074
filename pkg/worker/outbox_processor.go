package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/pkg/messaging"
	"github.com/clinicaonline/turnos-api/pkg/metrics"
	"github.com/clinicaonline/turnos-api/pkg/repository"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// MaxRetryDelay caps the exponential backoff between attempts
	MaxRetryDelay time.Duration
	Channel       string
}

func (c OutboxProcessorConfig) validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("BatchSize must be greater than 0")
	case c.PollInterval <= 0:
		return fmt.Errorf("PollInterval must be greater than 0")
	case c.RetryAttempts <= 0:
		return fmt.Errorf("RetryAttempts must be greater than 0")
	case c.RetryDelay <= 0:
		return fmt.Errorf("RetryDelay must be greater than 0")
	}
	return nil
}

type OutboxProcessor struct {
	repo    repository.OutboxStore
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxStore,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger zerolog.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid outbox processor config: %w", err)
	}
	if config.Channel == "" {
		config.Channel = messaging.Channel
	}
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = time.Hour
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger.With().Str("component", "outbox_processor").Logger(),
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info().Msg("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error().Err(err).Msg("Failed to process events")
			}
		}
	}
}

// ProcessBatch publishes one batch of due events and returns how many were handled
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	n, err := p.repo.ProcessPending(ctx, p.config.BatchSize, func(event *model.OutboxEvent) model.OutboxResult {
		return p.processEvent(ctx, event)
	})
	if err != nil {
		return n, fmt.Errorf("failed to process pending events: %w", err)
	}
	return n, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) model.OutboxResult {
	msg := messaging.Message{
		ID:         event.ID,
		Type:       event.EventType,
		Payload:    event.Payload,
		OccurredAt: event.CreatedAt,
	}

	err := p.broker.Publish(ctx, p.config.Channel, msg)
	if err == nil {
		p.metrics.OutboxEventsProcessed.Inc()
		return model.OutboxResult{Status: model.OutboxStatusProcessed}
	}

	errStr := err.Error()
	attempts := event.RetryCount + 1
	if attempts >= p.config.RetryAttempts {
		p.metrics.OutboxEventsFailed.Inc()
		p.logger.Error().Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", event.EventType).
			Int("attempts", attempts).
			Msg("Giving up on outbox event")
		return model.OutboxResult{Status: model.OutboxStatusFailed, ErrorMessage: &errStr}
	}

	p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	retryAt := p.now().Add(p.backoff(event.RetryCount))
	p.logger.Warn().Err(err).
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Time("retry_at", retryAt).
		Msg("Failed to publish outbox event, will retry")
	return model.OutboxResult{Status: model.OutboxStatusRetry, ErrorMessage: &errStr, RetryAt: &retryAt}
}

// backoff doubles RetryDelay per previous attempt
func (p *OutboxProcessor) backoff(previous int) time.Duration {
	delay := p.config.RetryDelay
	for i := 0; i < previous; i++ {
		delay *= 2
		if delay >= p.config.MaxRetryDelay {
			return p.config.MaxRetryDelay
		}
	}
	return delay
}
