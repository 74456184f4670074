package postgres

import (
	"context"
	"fmt"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
)

type reportRepository struct {
	BaseRepository
}

func NewReportRepository(base BaseRepository) repository.ReportRepository {
	return &reportRepository{base}
}

func (r *reportRepository) TurnosPorEspecialidad(ctx context.Context, rng model.DateRange) ([]model.LabelCount, error) {
	query := `
		SELECT esp.nombre AS label, COUNT(t.id) AS total
		FROM turnos t
		JOIN especialidades esp ON esp.id = t.especialidad_id
		WHERE ($1::timestamptz IS NULL OR t.fecha_inicio >= $1)
		AND ($2::timestamptz IS NULL OR t.fecha_inicio < $2)
		GROUP BY esp.nombre
		ORDER BY total DESC, label
	`
	counts := []model.LabelCount{}
	if err := r.db.SelectContext(ctx, &counts, query, rng.Desde, rng.Hasta); err != nil {
		return nil, fmt.Errorf("failed to count turnos by specialty: %w", err)
	}
	return counts, nil
}

func (r *reportRepository) TurnosPorDia(ctx context.Context, rng model.DateRange) ([]model.DailyCount, error) {
	query := `
		SELECT date_trunc('day', t.fecha_inicio) AS dia, COUNT(t.id) AS total
		FROM turnos t
		WHERE ($1::timestamptz IS NULL OR t.fecha_inicio >= $1)
		AND ($2::timestamptz IS NULL OR t.fecha_inicio < $2)
		GROUP BY dia
		ORDER BY dia
	`
	counts := []model.DailyCount{}
	if err := r.db.SelectContext(ctx, &counts, query, rng.Desde, rng.Hasta); err != nil {
		return nil, fmt.Errorf("failed to count turnos by day: %w", err)
	}
	return counts, nil
}

// TurnosPorEspecialista counts turnos requested in the range. With estado set
// it counts turnos now in estado that reached it within the range instead.
func (r *reportRepository) TurnosPorEspecialista(ctx context.Context, rng model.DateRange, estado model.TurnoStatus) ([]model.LabelCount, error) {
	query := `
		SELECT e.apellido || ', ' || e.nombre AS label, COUNT(t.id) AS total
		FROM turnos t
		JOIN usuarios e ON e.id = t.especialista_id
		WHERE ($1::timestamptz IS NULL OR t.created_at >= $1)
		AND ($2::timestamptz IS NULL OR t.created_at < $2)
		GROUP BY e.id, e.apellido, e.nombre
		ORDER BY total DESC, label
	`
	args := []interface{}{rng.Desde, rng.Hasta}
	if estado != "" {
		query = `
		SELECT e.apellido || ', ' || e.nombre AS label, COUNT(DISTINCT t.id) AS total
		FROM turnos t
		JOIN usuarios e ON e.id = t.especialista_id
		JOIN turnos_historial h ON h.turno_id = t.id AND h.estado_nuevo = $3
		WHERE t.estado = $3
		AND ($1::timestamptz IS NULL OR h.created_at >= $1)
		AND ($2::timestamptz IS NULL OR h.created_at < $2)
		GROUP BY e.id, e.apellido, e.nombre
		ORDER BY total DESC, label
	`
		args = append(args, string(estado))
	}

	counts := []model.LabelCount{}
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count turnos by specialist: %w", err)
	}
	return counts, nil
}
