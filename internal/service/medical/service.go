package medical

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
	"github.com/clinicaonline/turnos-api/pkg/errors"
)

// Service reads clinical records. Records are only written by finalizing a turno.
type Service struct {
	repo  repository.MedicalRecordRepository
	users repository.UserRepository
}

func NewService(repo repository.MedicalRecordRepository, users repository.UserRepository) *Service {
	return &Service{
		repo:  repo,
		users: users,
	}
}

// canRead: admins read everything, patients their own records and
// specialists the records they authored.
func canRead(record *model.ClinicalRecord, actor model.Actor) bool {
	switch actor.Role {
	case model.RoleAdmin:
		return true
	case model.RolePaciente:
		return record.PacienteID == actor.ID
	case model.RoleEspecialista:
		return record.EspecialistaID == actor.ID
	}
	return false
}

func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ClinicalRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(record, actor) {
		return nil, errors.Forbidden("you cannot view this clinical record")
	}
	return record, nil
}

func (s *Service) GetByTurno(ctx context.Context, actor model.Actor, turnoID uuid.UUID) (*model.ClinicalRecord, error) {
	record, err := s.repo.GetByTurno(ctx, turnoID)
	if err != nil {
		return nil, err
	}
	if !canRead(record, actor) {
		return nil, errors.Forbidden("you cannot view this clinical record")
	}
	return record, nil
}

// ListByPatient returns the history of one patient as far as actor may see it
func (s *Service) ListByPatient(ctx context.Context, actor model.Actor, pacienteID uuid.UUID) ([]*model.ClinicalRecord, error) {
	filter := model.ClinicalRecordFilter{PacienteID: &pacienteID}

	switch actor.Role {
	case model.RoleAdmin:
	case model.RolePaciente:
		if actor.ID != pacienteID {
			return nil, errors.Forbidden("you can only view your own clinical records")
		}
	case model.RoleEspecialista:
		filter.EspecialistaID = &actor.ID
	default:
		return nil, errors.Forbidden("you cannot view clinical records")
	}

	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list clinical records: %w", err)
	}
	return records, nil
}

// ListMine returns the records of a patient, or those authored by a specialist
func (s *Service) ListMine(ctx context.Context, actor model.Actor) ([]*model.ClinicalRecord, error) {
	var filter model.ClinicalRecordFilter
	switch actor.Role {
	case model.RolePaciente:
		filter.PacienteID = &actor.ID
	case model.RoleEspecialista:
		filter.EspecialistaID = &actor.ID
	case model.RoleAdmin:
	default:
		return nil, errors.Forbidden("you cannot view clinical records")
	}

	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list clinical records: %w", err)
	}
	return records, nil
}

// AttendedPatients lists the patients a specialist has at least one record for
func (s *Service) AttendedPatients(ctx context.Context, actor model.Actor) ([]*model.User, error) {
	if actor.Role != model.RoleEspecialista {
		return nil, errors.Forbidden("only specialists have attended patients")
	}

	records, err := s.repo.List(ctx, model.ClinicalRecordFilter{EspecialistaID: &actor.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to list clinical records: %w", err)
	}

	seen := map[uuid.UUID]bool{}
	patients := []*model.User{}
	for _, r := range records {
		if seen[r.PacienteID] {
			continue
		}
		seen[r.PacienteID] = true
		p, err := s.users.GetByID(ctx, r.PacienteID)
		if err != nil {
			return nil, fmt.Errorf("failed to load patient %s: %w", r.PacienteID, err)
		}
		patients = append(patients, p)
	}
	return patients, nil
}
