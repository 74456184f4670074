package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/pkg/messaging"
	"github.com/clinicaonline/turnos-api/pkg/metrics"
)

type fakeOutbox struct {
	events  []*model.OutboxEvent
	results map[uuid.UUID]model.OutboxResult
}

func (f *fakeOutbox) ProcessPending(ctx context.Context, limit int, fn func(*model.OutboxEvent) model.OutboxResult) (int, error) {
	if f.results == nil {
		f.results = map[uuid.UUID]model.OutboxResult{}
	}
	n := 0
	for _, e := range f.events {
		if n == limit {
			break
		}
		f.results[e.ID] = fn(e)
		n++
	}
	return n, nil
}

func (f *fakeOutbox) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type fakeBroker struct {
	published []messaging.Message
	err       error
}

func (b *fakeBroker) Publish(ctx context.Context, channel string, msg messaging.Message) error {
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, msg)
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan messaging.Message, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBroker) Ack(ctx context.Context, channel string, msg messaging.Message) error {
	return nil
}

func (b *fakeBroker) Close() error { return nil }

func newProcessor(t *testing.T, repo *fakeOutbox, broker *fakeBroker) (*OutboxProcessor, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	p, err := NewOutboxProcessor(repo, broker, OutboxProcessorConfig{
		BatchSize:     2,
		PollInterval:  time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Minute,
	}, zerolog.Nop(), m)
	require.NoError(t, err)
	p.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return p, m
}

func newEvent(t *testing.T, retries int) *model.OutboxEvent {
	evt, err := model.NewOutboxEvent(model.EventTurnoEstadoCambiado, map[string]string{"estado_nuevo": "ACEPTADO"})
	require.NoError(t, err)
	evt.RetryCount = retries
	return evt
}

func TestNewOutboxProcessor_InvalidConfig(t *testing.T) {
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	_, err := NewOutboxProcessor(&fakeOutbox{}, &fakeBroker{}, OutboxProcessorConfig{}, zerolog.Nop(), m)
	assert.Error(t, err)
}

func TestOutboxProcessor_PublishesBatch(t *testing.T) {
	repo := &fakeOutbox{events: []*model.OutboxEvent{newEvent(t, 0), newEvent(t, 0), newEvent(t, 0)}}
	broker := &fakeBroker{}
	p, m := newProcessor(t, repo, broker)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, broker.published, 2)
	assert.Equal(t, repo.events[0].ID, broker.published[0].ID)
	assert.Equal(t, model.EventTurnoEstadoCambiado, broker.published[0].Type)
	assert.Equal(t, model.OutboxStatusProcessed, repo.results[repo.events[0].ID].Status)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboxEventsProcessed))
}

func TestOutboxProcessor_RetriesWithBackoff(t *testing.T) {
	first := newEvent(t, 0)
	second := newEvent(t, 1)
	repo := &fakeOutbox{events: []*model.OutboxEvent{first, second}}
	p, m := newProcessor(t, repo, &fakeBroker{err: errors.New("redis down")})

	_, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)

	r1 := repo.results[first.ID]
	assert.Equal(t, model.OutboxStatusRetry, r1.Status)
	require.NotNil(t, r1.RetryAt)
	assert.Equal(t, p.now().Add(time.Minute), *r1.RetryAt)
	require.NotNil(t, r1.ErrorMessage)
	assert.Contains(t, *r1.ErrorMessage, "redis down")

	r2 := repo.results[second.ID]
	assert.Equal(t, model.OutboxStatusRetry, r2.Status)
	assert.Equal(t, p.now().Add(2*time.Minute), *r2.RetryAt)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboxRetries.WithLabelValues(model.EventTurnoEstadoCambiado)))
}

func TestOutboxProcessor_FailsAfterMaxAttempts(t *testing.T) {
	evt := newEvent(t, 2)
	repo := &fakeOutbox{events: []*model.OutboxEvent{evt}}
	p, m := newProcessor(t, repo, &fakeBroker{err: errors.New("redis down")})

	_, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)

	result := repo.results[evt.ID]
	assert.Equal(t, model.OutboxStatusFailed, result.Status)
	assert.Nil(t, result.RetryAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxEventsFailed))
}

func TestOutboxProcessor_BackoffIsCapped(t *testing.T) {
	p, _ := newProcessor(t, &fakeOutbox{}, &fakeBroker{})
	p.config.MaxRetryDelay = 5 * time.Minute

	assert.Equal(t, time.Minute, p.backoff(0))
	assert.Equal(t, 4*time.Minute, p.backoff(2))
	assert.Equal(t, 5*time.Minute, p.backoff(3))
	assert.Equal(t, 5*time.Minute, p.backoff(30))
}
