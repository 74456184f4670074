package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
)

type scheduleRepository struct {
	BaseRepository
}

func NewScheduleRepository(base BaseRepository) repository.ScheduleRepository {
	return &scheduleRepository{base}
}

func (r *scheduleRepository) ListBySpecialist(ctx context.Context, especialistaID uuid.UUID) ([]*model.Schedule, error) {
	query := `
		SELECT id, especialista_id, especialidad_id, dia_semana, hora_inicio, hora_fin, created_at
		FROM horarios
		WHERE especialista_id = $1
		ORDER BY dia_semana, hora_inicio
	`
	schedules := []*model.Schedule{}
	if err := r.db.SelectContext(ctx, &schedules, query, especialistaID); err != nil {
		return nil, fmt.Errorf("failed to list horarios: %w", err)
	}
	return schedules, nil
}

func (r *scheduleRepository) Replace(ctx context.Context, especialistaID uuid.UUID, entries []*model.Schedule) error {
	now := time.Now().UTC()
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM horarios WHERE especialista_id = $1`, especialistaID); err != nil {
			return fmt.Errorf("failed to clear horarios: %w", err)
		}

		query := `
			INSERT INTO horarios (
				id, especialista_id, especialidad_id, dia_semana, hora_inicio, hora_fin, created_at
			) VALUES (:id, :especialista_id, :especialidad_id, :dia_semana, :hora_inicio, :hora_fin, :created_at)
		`
		for _, entry := range entries {
			if entry.ID == uuid.Nil {
				entry.ID = uuid.New()
			}
			entry.EspecialistaID = especialistaID
			entry.CreatedAt = now
			if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
				return fmt.Errorf("failed to insert horario: %w", err)
			}
		}
		return nil
	})
}
