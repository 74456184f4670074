package survey

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
	"github.com/clinicaonline/turnos-api/pkg/errors"
)

type Service struct {
	repo   repository.SurveyRepository
	turnos repository.AppointmentRepository
}

func NewService(repo repository.SurveyRepository, turnos repository.AppointmentRepository) *Service {
	return &Service{
		repo:   repo,
		turnos: turnos,
	}
}

// Submit stores the patient's survey for a finalized turno. A second
// submission for the same turno fails with CONFLICT.
func (s *Service) Submit(ctx context.Context, actor model.Actor, turnoID uuid.UUID, req model.SubmitSurveyRequest) (*model.Survey, error) {
	turno, err := s.turnos.GetByID(ctx, turnoID)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RolePaciente || turno.PacienteID != actor.ID {
		return nil, errors.Forbidden("only the patient of the turno can submit its survey")
	}
	if turno.Estado != model.TurnoFinalizado {
		return nil, errors.Validation("surveys can only be submitted for finalized turnos")
	}

	if req.Calificacion < 1 || req.Calificacion > 5 {
		return nil, errors.Validation("calificacion must be between 1 and 5")
	}
	comentario := strings.TrimSpace(req.Comentario)
	if utf8.RuneCountInString(comentario) > model.MaxSurveyComment {
		return nil, errors.Validationf("comentario must be at most %d characters", model.MaxSurveyComment)
	}
	if req.Recomendaria == nil {
		return nil, errors.Validation("recomendaria is required")
	}

	survey := &model.Survey{
		ID:           uuid.New(),
		TurnoID:      turno.ID,
		PacienteID:   actor.ID,
		Calificacion: req.Calificacion,
		Comentario:   comentario,
		Recomendaria: *req.Recomendaria,
	}
	if err := s.repo.Create(ctx, survey); err != nil {
		return nil, fmt.Errorf("failed to save survey: %w", err)
	}
	return survey, nil
}

// GetByTurno is readable by the turno's patient and specialist, and admins
func (s *Service) GetByTurno(ctx context.Context, actor model.Actor, turnoID uuid.UUID) (*model.Survey, error) {
	turno, err := s.turnos.GetByID(ctx, turnoID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != turno.PacienteID && actor.ID != turno.EspecialistaID {
		return nil, errors.Forbidden("you cannot view this survey")
	}
	return s.repo.GetByTurno(ctx, turnoID)
}

func (s *Service) List(ctx context.Context, actor model.Actor, filter model.SurveyFilter) ([]*model.Survey, int, error) {
	if !actor.IsAdmin() {
		return nil, 0, errors.Forbidden("only admins can list surveys")
	}
	filter.Normalize()
	surveys, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list surveys: %w", err)
	}
	return surveys, total, nil
}
