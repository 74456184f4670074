package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
	"github.com/clinicaonline/turnos-api/pkg/errors"
)

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

// selectTurnos joins the names shown in listings and computes the survey and
// record flags in the same round trip.
func (r *appointmentRepository) selectTurnos() *goqu.SelectDataset {
	return r.qb.From(goqu.T("turnos").As("t")).
		Select(
			goqu.I("t.id"),
			goqu.I("t.paciente_id"),
			goqu.I("t.especialista_id"),
			goqu.I("t.especialidad_id"),
			goqu.I("t.fecha_inicio"),
			goqu.I("t.fecha_fin"),
			goqu.I("t.estado"),
			goqu.I("t.motivo"),
			goqu.I("t.comentario"),
			goqu.I("t.created_at"),
			goqu.I("t.updated_at"),
			goqu.L(`p.nombre || ' ' || p.apellido`).As("paciente_nombre"),
			goqu.L(`e.nombre || ' ' || e.apellido`).As("especialista_nombre"),
			goqu.I("esp.nombre").As("especialidad_nombre"),
			goqu.L(`EXISTS (SELECT 1 FROM encuestas_atencion ea WHERE ea.turno_id = t.id)`).As("tiene_encuesta"),
			goqu.L(`EXISTS (SELECT 1 FROM historias_clinicas hc WHERE hc.turno_id = t.id)`).As("tiene_historia"),
		).
		InnerJoin(goqu.T("usuarios").As("p"), goqu.On(goqu.I("p.id").Eq(goqu.I("t.paciente_id")))).
		InnerJoin(goqu.T("usuarios").As("e"), goqu.On(goqu.I("e.id").Eq(goqu.I("t.especialista_id")))).
		InnerJoin(goqu.T("especialidades").As("esp"), goqu.On(goqu.I("esp.id").Eq(goqu.I("t.especialidad_id"))))
}

func (r *appointmentRepository) Create(ctx context.Context, turno *model.Turno, event *model.OutboxEvent) error {
	now := time.Now().UTC()
	if turno.ID == uuid.Nil {
		turno.ID = uuid.New()
	}
	turno.Estado = model.TurnoPendiente
	turno.CreatedAt = now
	turno.UpdatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO turnos (
				id, paciente_id, especialista_id, especialidad_id,
				fecha_inicio, fecha_fin, estado, motivo, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		_, err := tx.ExecContext(ctx, query,
			turno.ID,
			turno.PacienteID,
			turno.EspecialistaID,
			turno.EspecialidadID,
			turno.FechaInicio,
			turno.FechaFin,
			turno.Estado,
			turno.Motivo,
			turno.CreatedAt,
			turno.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.Conflict("the selected slot is no longer available", err)
			}
			return fmt.Errorf("failed to create turno: %w", err)
		}

		if err := insertHistory(ctx, tx, turno.ID, nil, model.TurnoPendiente, turno.PacienteID, nil, now); err != nil {
			return err
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *appointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Turno, error) {
	query, args, err := r.selectTurnos().
		Where(goqu.I("t.id").Eq(id.String())).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var turno model.Turno
	if err := r.db.GetContext(ctx, &turno, query, args...); err != nil {
		return nil, notFound(err, "turno")
	}
	return &turno, nil
}

func (r *appointmentRepository) List(ctx context.Context, filter model.TurnoFilter) ([]*model.Turno, int, error) {
	filter.Normalize()

	ds := r.selectTurnos().
		Where(turnoConditions(filter)...).
		Order(goqu.I("t.fecha_inicio").Desc())

	turnos := []*model.Turno{}
	total, err := r.countAndSelect(ctx, ds, &turnos, filter.Pagination)
	if err != nil {
		return nil, 0, err
	}
	return turnos, total, nil
}

func turnoConditions(filter model.TurnoFilter) []exp.Expression {
	var where []exp.Expression
	if filter.PacienteID != nil {
		where = append(where, goqu.I("t.paciente_id").Eq(filter.PacienteID.String()))
	}
	if filter.EspecialistaID != nil {
		where = append(where, goqu.I("t.especialista_id").Eq(filter.EspecialistaID.String()))
	}
	if filter.EspecialidadID != nil {
		where = append(where, goqu.I("t.especialidad_id").Eq(filter.EspecialidadID.String()))
	}
	if filter.Estado != "" {
		where = append(where, goqu.I("t.estado").Eq(string(filter.Estado)))
	}
	if filter.Desde != nil {
		where = append(where, goqu.I("t.fecha_inicio").Gte(*filter.Desde))
	}
	if filter.Hasta != nil {
		where = append(where, goqu.I("t.fecha_inicio").Lt(*filter.Hasta))
	}
	if filter.Search != "" {
		pattern := containsPattern(filter.Search)
		where = append(where, goqu.Or(
			goqu.I("t.motivo").ILike(pattern),
			goqu.I("t.comentario").ILike(pattern),
			goqu.I("esp.nombre").ILike(pattern),
			goqu.L(`p.nombre || ' ' || p.apellido`).ILike(pattern),
			goqu.L(`e.nombre || ' ' || e.apellido`).ILike(pattern),
		))
	}
	return where
}

func (r *appointmentRepository) ListActiveBySpecialist(ctx context.Context, especialistaID uuid.UUID, from, to time.Time) ([]*model.Turno, error) {
	query := `
		SELECT id, paciente_id, especialista_id, especialidad_id, fecha_inicio, fecha_fin,
			estado, motivo, comentario, created_at, updated_at
		FROM turnos
		WHERE especialista_id = $1
		AND estado IN ('PENDIENTE', 'ACEPTADO')
		AND fecha_inicio < $3
		AND fecha_fin > $2
		ORDER BY fecha_inicio ASC
	`
	turnos := []*model.Turno{}
	if err := r.db.SelectContext(ctx, &turnos, query, especialistaID, from, to); err != nil {
		return nil, fmt.Errorf("failed to list active turnos: %w", err)
	}
	return turnos, nil
}

func (r *appointmentRepository) HasOverlap(ctx context.Context, especialistaID, pacienteID uuid.UUID, start, end time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM turnos
			WHERE estado IN ('PENDIENTE', 'ACEPTADO')
			AND (especialista_id = $1 OR paciente_id = $2)
			AND fecha_inicio < $4
			AND fecha_fin > $3
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, especialistaID, pacienteID, start, end); err != nil {
		return false, fmt.Errorf("failed to check overlapping turnos: %w", err)
	}
	return exists, nil
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, change model.StatusChange) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		return applyStatusChange(ctx, tx, change)
	})
}

func (r *appointmentRepository) Finalize(ctx context.Context, change model.StatusChange, record *model.ClinicalRecord) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := applyStatusChange(ctx, tx, change); err != nil {
			return err
		}

		query := `
			INSERT INTO historias_clinicas (
				id, turno_id, paciente_id, especialista_id,
				altura, peso, temperatura, presion, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		_, err := tx.ExecContext(ctx, query,
			record.ID,
			record.TurnoID,
			record.PacienteID,
			record.EspecialistaID,
			record.Altura,
			record.Peso,
			record.Temperatura,
			record.Presion,
			record.CreatedAt,
		)
		if err != nil {
			return conflictOnUnique(err, "turno already has a clinical record")
		}

		for _, dato := range record.Datos {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO historia_datos_dinamicos (historia_id, clave, valor) VALUES ($1, $2, $3)`,
				record.ID, dato.Clave, dato.Valor,
			)
			if err != nil {
				return fmt.Errorf("failed to insert dynamic entry %q: %w", dato.Clave, err)
			}
		}
		return nil
	})
}

// applyStatusChange is the single write path for turno status. The WHERE on
// the expected estado makes concurrent transitions lose with CONFLICT.
func applyStatusChange(ctx context.Context, tx *sqlx.Tx, change model.StatusChange) error {
	at := change.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	query := `
		UPDATE turnos
		SET estado = $1, comentario = COALESCE($2, comentario), updated_at = $3
		WHERE id = $4 AND estado = $5
	`
	result, err := tx.ExecContext(ctx, query, change.To, change.Comentario, at, change.TurnoID, change.From)
	if err != nil {
		return fmt.Errorf("failed to update turno status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return errors.Conflict("turno was modified by another request, reload and try again", nil)
	}

	from := change.From
	if err := insertHistory(ctx, tx, change.TurnoID, &from, change.To, change.ActorID, change.Comentario, at); err != nil {
		return err
	}
	return insertOutboxEvent(ctx, tx, change.Event)
}

func insertHistory(ctx context.Context, tx sqlx.ExecerContext, turnoID uuid.UUID, from *model.TurnoStatus, to model.TurnoStatus, actorID uuid.UUID, comentario *string, at time.Time) error {
	query := `
		INSERT INTO turnos_historial (
			id, turno_id, estado_anterior, estado_nuevo, actor_id, comentario, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query, uuid.New(), turnoID, from, to, actorID, comentario, at)
	if err != nil {
		return fmt.Errorf("failed to append turno history: %w", err)
	}
	return nil
}

func (r *appointmentRepository) History(ctx context.Context, turnoID uuid.UUID) ([]*model.TurnoHistory, error) {
	query := `
		SELECT id, turno_id, estado_anterior, estado_nuevo, actor_id, comentario, created_at
		FROM turnos_historial
		WHERE turno_id = $1
		ORDER BY created_at ASC
	`
	history := []*model.TurnoHistory{}
	if err := r.db.SelectContext(ctx, &history, query, turnoID); err != nil {
		return nil, fmt.Errorf("failed to list turno history: %w", err)
	}
	return history, nil
}
