package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicaonline/turnos-api/pkg/logger"
	"github.com/clinicaonline/turnos-api/pkg/repository"
)

// OutboxCleanupWorker deletes processed outbox events past their retention
type OutboxCleanupWorker struct {
	repo            repository.OutboxStore
	retentionDays   int
	cleanupInterval time.Duration
	log             zerolog.Logger
}

func NewOutboxCleanupWorker(repo repository.OutboxStore, retentionDays int, cleanupInterval time.Duration) *OutboxCleanupWorker {
	return &OutboxCleanupWorker{
		repo:            repo,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		log:             logger.WithFields(map[string]interface{}{"component": "outbox_cleanup"}),
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx, time.Now().UTC()); err != nil {
				w.log.Error().Err(err).Msg("Error cleaning up outbox events")
			}
		}
	}
}

// Cleanup removes processed events older than the retention window relative to now
func (w *OutboxCleanupWorker) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -w.retentionDays)

	rows, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup outbox events: %w", err)
	}

	w.log.Info().Int64("deleted", rows).Time("cutoff", cutoff).Msg("Cleaned up processed outbox events")
	return rows, nil
}
