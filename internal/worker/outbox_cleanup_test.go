package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicaonline/turnos-api/internal/model"
)

type recordingStore struct {
	before time.Time
	rows   int64
	err    error
}

func (s *recordingStore) ProcessPending(ctx context.Context, limit int, fn func(*model.OutboxEvent) model.OutboxResult) (int, error) {
	return 0, nil
}

func (s *recordingStore) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	s.before = before
	return s.rows, s.err
}

func TestOutboxCleanupWorker_Cleanup(t *testing.T) {
	store := &recordingStore{rows: 12}
	w := NewOutboxCleanupWorker(store, 7, time.Hour)
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	rows, err := w.Cleanup(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(12), rows)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), store.before)
}

func TestOutboxCleanupWorker_CleanupError(t *testing.T) {
	w := NewOutboxCleanupWorker(&recordingStore{err: errors.New("db gone")}, 7, time.Hour)

	_, err := w.Cleanup(context.Background(), time.Now())
	assert.ErrorContains(t, err, "db gone")
}
