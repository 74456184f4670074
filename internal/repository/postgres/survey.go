package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
	"github.com/clinicaonline/turnos-api/pkg/errors"
)

type surveyRepository struct {
	BaseRepository
}

func NewSurveyRepository(base BaseRepository) repository.SurveyRepository {
	return &surveyRepository{base}
}

func (r *surveyRepository) Create(ctx context.Context, survey *model.Survey) error {
	if survey.ID == uuid.Nil {
		survey.ID = uuid.New()
	}
	survey.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO encuestas_atencion (
			id, turno_id, paciente_id, calificacion, comentario, recomendaria, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		survey.ID,
		survey.TurnoID,
		survey.PacienteID,
		survey.Calificacion,
		survey.Comentario,
		survey.Recomendaria,
		survey.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("a survey was already submitted for this turno", err)
		}
		return fmt.Errorf("failed to create survey: %w", err)
	}
	return nil
}

func (r *surveyRepository) GetByTurno(ctx context.Context, turnoID uuid.UUID) (*model.Survey, error) {
	var survey model.Survey
	query := `
		SELECT id, turno_id, paciente_id, calificacion, comentario, recomendaria, created_at
		FROM encuestas_atencion
		WHERE turno_id = $1
	`
	if err := r.db.GetContext(ctx, &survey, query, turnoID); err != nil {
		return nil, notFound(err, "survey")
	}
	return &survey, nil
}

func (r *surveyRepository) List(ctx context.Context, filter model.SurveyFilter) ([]*model.Survey, int, error) {
	filter.Normalize()

	var where []exp.Expression
	if filter.EspecialistaID != nil {
		where = append(where, goqu.I("t.especialista_id").Eq(filter.EspecialistaID.String()))
	}
	if filter.Desde != nil {
		where = append(where, goqu.I("ea.created_at").Gte(*filter.Desde))
	}
	if filter.Hasta != nil {
		where = append(where, goqu.I("ea.created_at").Lt(*filter.Hasta))
	}

	ds := r.qb.From(goqu.T("encuestas_atencion").As("ea")).
		Select(
			goqu.I("ea.id"),
			goqu.I("ea.turno_id"),
			goqu.I("ea.paciente_id"),
			goqu.I("ea.calificacion"),
			goqu.I("ea.comentario"),
			goqu.I("ea.recomendaria"),
			goqu.I("ea.created_at"),
		).
		InnerJoin(goqu.T("turnos").As("t"), goqu.On(goqu.I("t.id").Eq(goqu.I("ea.turno_id")))).
		Where(where...).
		Order(goqu.I("ea.created_at").Desc())

	surveys := []*model.Survey{}
	total, err := r.countAndSelect(ctx, ds, &surveys, filter.Pagination)
	if err != nil {
		return nil, 0, err
	}
	return surveys, total, nil
}
