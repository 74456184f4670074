package report

import (
	"context"
	"fmt"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
	"github.com/clinicaonline/turnos-api/pkg/errors"
)

// Service backs the admin statistics screens
type Service struct {
	repo   repository.ReportRepository
	logins repository.LoginLogRepository
}

func NewService(repo repository.ReportRepository, logins repository.LoginLogRepository) *Service {
	return &Service{
		repo:   repo,
		logins: logins,
	}
}

func check(actor model.Actor, rng model.DateRange) error {
	if !actor.IsAdmin() {
		return errors.Forbidden("only admins can view reports")
	}
	if rng.Desde != nil && rng.Hasta != nil && rng.Hasta.Before(*rng.Desde) {
		return errors.Validation("hasta must not be before desde")
	}
	return nil
}

func (s *Service) TurnosPorEspecialidad(ctx context.Context, actor model.Actor, rng model.DateRange) ([]model.LabelCount, error) {
	if err := check(actor, rng); err != nil {
		return nil, err
	}
	rows, err := s.repo.TurnosPorEspecialidad(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to count turnos by specialty: %w", err)
	}
	return rows, nil
}

func (s *Service) TurnosPorDia(ctx context.Context, actor model.Actor, rng model.DateRange) ([]model.DailyCount, error) {
	if err := check(actor, rng); err != nil {
		return nil, err
	}
	rows, err := s.repo.TurnosPorDia(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to count turnos by day: %w", err)
	}
	return rows, nil
}

// TurnosSolicitadosPorEspecialista counts every turno requested in the range
func (s *Service) TurnosSolicitadosPorEspecialista(ctx context.Context, actor model.Actor, rng model.DateRange) ([]model.LabelCount, error) {
	return s.porEspecialista(ctx, actor, rng, "")
}

func (s *Service) TurnosFinalizadosPorEspecialista(ctx context.Context, actor model.Actor, rng model.DateRange) ([]model.LabelCount, error) {
	return s.porEspecialista(ctx, actor, rng, model.TurnoFinalizado)
}

func (s *Service) porEspecialista(ctx context.Context, actor model.Actor, rng model.DateRange, estado model.TurnoStatus) ([]model.LabelCount, error) {
	if err := check(actor, rng); err != nil {
		return nil, err
	}
	rows, err := s.repo.TurnosPorEspecialista(ctx, rng, estado)
	if err != nil {
		return nil, fmt.Errorf("failed to count turnos by specialist: %w", err)
	}
	return rows, nil
}

func (s *Service) LoginLogs(ctx context.Context, actor model.Actor, rng model.DateRange, page model.Pagination) ([]*model.LoginLog, int, error) {
	if err := check(actor, rng); err != nil {
		return nil, 0, err
	}
	page.Normalize()
	logs, total, err := s.logins.List(ctx, rng, page)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list login log: %w", err)
	}
	return logs, total, nil
}
