package repository

import (
	"context"
	"time"

	"github.com/clinicaonline/turnos-api/internal/model"
)

// OutboxStore is the part of the outbox repository the workers need
type OutboxStore interface {
	ProcessPending(ctx context.Context, limit int, fn func(*model.OutboxEvent) model.OutboxResult) (int, error)
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
