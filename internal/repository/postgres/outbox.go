package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	return insertOutboxEvent(ctx, r.db, event)
}

func (r *outboxRepository) ProcessPending(ctx context.Context, limit int, fn func(*model.OutboxEvent) model.OutboxResult) (int, error) {
	processed := 0
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			SELECT id, event_type, payload, status, error_message, retry_count, retry_at,
				created_at, updated_at, processed_at
			FROM outbox_events
			WHERE status IN ('PENDING', 'RETRY')
			AND (retry_at IS NULL OR retry_at <= NOW())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`
		events := []*model.OutboxEvent{}
		if err := tx.SelectContext(ctx, &events, query, limit); err != nil {
			return fmt.Errorf("failed to get pending events: %w", err)
		}

		for _, evt := range events {
			result := fn(evt)
			if err := updateOutboxStatus(ctx, tx, evt, result); err != nil {
				return err
			}
			processed++
		}
		return nil
	})
	return processed, err
}

func updateOutboxStatus(ctx context.Context, tx *sqlx.Tx, evt *model.OutboxEvent, result model.OutboxResult) error {
	retryCount := evt.RetryCount
	if result.Status != model.OutboxStatusProcessed {
		retryCount++
	}

	query := `
		UPDATE outbox_events
		SET status = $1,
			error_message = $2,
			retry_at = $3,
			retry_count = $4,
			processed_at = CASE WHEN $1 = 'PROCESSED' THEN NOW() ELSE processed_at END,
			updated_at = NOW()
		WHERE id = $5
	`
	_, err := tx.ExecContext(ctx, query, result.Status, result.ErrorMessage, result.RetryAt, retryCount, evt.ID)
	if err != nil {
		return fmt.Errorf("failed to update outbox event %s: %w", evt.ID, err)
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = 'PROCESSED'
		AND processed_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}
