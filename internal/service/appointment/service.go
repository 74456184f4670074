package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
	"github.com/clinicaonline/turnos-api/pkg/errors"
	"github.com/clinicaonline/turnos-api/pkg/metrics"
)

// SlotChecker validates a requested start against the specialist's agenda
// and returns the end of the slot.
type SlotChecker interface {
	CheckBookable(ctx context.Context, especialistaID, especialidadID uuid.UUID, start time.Time) (time.Time, error)
}

type Service struct {
	repo    repository.AppointmentRepository
	users   repository.UserRepository
	records repository.MedicalRecordRepository
	slots   SlotChecker
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(
	repo repository.AppointmentRepository,
	users repository.UserRepository,
	records repository.MedicalRecordRepository,
	slots SlotChecker,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		records: records,
		slots:   slots,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Book requests a turno. Patients book for themselves, admins on behalf of a patient.
func (s *Service) Book(ctx context.Context, actor model.Actor, req model.BookTurnoRequest) (*model.Turno, error) {
	pacienteID, err := resolvePatient(actor, req.PacienteID)
	if err != nil {
		return nil, err
	}

	motivo := strings.TrimSpace(req.Motivo)
	if motivo == "" {
		return nil, errors.Validation("motivo is required")
	}

	paciente, err := s.users.GetByID(ctx, pacienteID)
	if err != nil {
		return nil, err
	}
	if paciente.Role != model.RolePaciente {
		return nil, errors.Validation("turnos can only be booked for patients")
	}

	especialista, err := s.users.GetByID(ctx, req.EspecialistaID)
	if err != nil {
		return nil, err
	}
	if !especialista.CanBeBooked() {
		return nil, errors.Validation("the specialist is not available for booking")
	}

	ok, err := s.users.HasSpecialty(ctx, especialista.ID, req.EspecialidadID)
	if err != nil {
		return nil, fmt.Errorf("failed to check specialty: %w", err)
	}
	if !ok {
		return nil, errors.Validation("the specialist does not practice that specialty")
	}

	end, err := s.slots.CheckBookable(ctx, especialista.ID, req.EspecialidadID, req.FechaInicio)
	if err != nil {
		return nil, err
	}
	start := req.FechaInicio.UTC()
	end = end.UTC()

	busy, err := s.repo.HasOverlap(ctx, especialista.ID, pacienteID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to check availability: %w", err)
	}
	if busy {
		return nil, errors.Conflict("the specialist or the patient already has a turno at that time", nil)
	}

	turno := &model.Turno{
		Base:           model.Base{ID: uuid.New()},
		PacienteID:     pacienteID,
		EspecialistaID: especialista.ID,
		EspecialidadID: req.EspecialidadID,
		FechaInicio:    start,
		FechaFin:       end,
		Estado:         model.TurnoPendiente,
		Motivo:         motivo,
	}

	event, err := model.NewOutboxEvent(model.EventTurnoSolicitado, model.TurnoStatusChangedPayload{
		TurnoID:        turno.ID,
		PacienteID:     turno.PacienteID,
		EspecialistaID: turno.EspecialistaID,
		FechaInicio:    turno.FechaInicio,
		EstadoNuevo:    model.TurnoPendiente,
		ActorID:        actor.ID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, turno, event); err != nil {
		return nil, fmt.Errorf("failed to book turno: %w", err)
	}

	log.Ctx(ctx).Info().
		Str("turno_id", turno.ID.String()).
		Str("especialista_id", turno.EspecialistaID.String()).
		Time("fecha_inicio", turno.FechaInicio).
		Msg("Turno booked")

	return s.reload(ctx, actor, turno.ID)
}

func resolvePatient(actor model.Actor, requested *uuid.UUID) (uuid.UUID, error) {
	switch actor.Role {
	case model.RolePaciente:
		if requested != nil && *requested != actor.ID {
			return uuid.Nil, errors.Forbidden("patients can only book turnos for themselves")
		}
		return actor.ID, nil
	case model.RoleAdmin:
		if requested == nil || *requested == uuid.Nil {
			return uuid.Nil, errors.Validation("paciente_id is required when an admin books a turno")
		}
		return *requested, nil
	}
	return uuid.Nil, errors.Forbidden("only patients and admins can book turnos")
}

func (s *Service) Accept(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Turno, error) {
	return s.transition(ctx, actor, id, model.ActionAccept, "")
}

// Reject requires the reason shown to the patient
func (s *Service) Reject(ctx context.Context, actor model.Actor, id uuid.UUID, comentario string) (*model.Turno, error) {
	return s.transition(ctx, actor, id, model.ActionReject, comentario)
}

func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, comentario string) (*model.Turno, error) {
	return s.transition(ctx, actor, id, model.ActionCancel, comentario)
}

func (s *Service) transition(ctx context.Context, actor model.Actor, id uuid.UUID, action model.Action, comentario string) (*model.Turno, error) {
	turno, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(turno, actor, action); err != nil {
		return nil, err
	}

	var note *string
	if action == model.ActionReject || action == model.ActionCancel {
		c := strings.TrimSpace(comentario)
		if c == "" {
			return nil, errors.Validationf("a comentario is required to %s a turno", actionVerb(action))
		}
		note = &c
	}

	change, err := s.newChange(turno, actor, actionTarget[action], note)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, change); err != nil {
		return nil, fmt.Errorf("failed to %s turno: %w", actionVerb(action), err)
	}
	s.observe(change)

	return s.reload(ctx, actor, id)
}

// Finalize closes an accepted turno with the specialist's note and the
// clinical record. Calling it again on a finalized turno returns the stored
// record without writing anything.
func (s *Service) Finalize(ctx context.Context, actor model.Actor, id uuid.UUID, req model.FinalizeTurnoRequest) (*model.FinalizeResult, error) {
	turno, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if turno.Estado == model.TurnoFinalizado && mayPerform(turno, actor, model.ActionFinalize) {
		return s.replayFinalize(ctx, actor, turno)
	}
	if err := Authorize(turno, actor, model.ActionFinalize); err != nil {
		return nil, err
	}

	note := strings.TrimSpace(req.Comentario)
	if note == "" {
		return nil, errors.Validation("a comentario is required to finalize a turno")
	}
	record, err := buildRecord(turno, req.Historia, s.now())
	if err != nil {
		return nil, err
	}

	change, err := s.newChange(turno, actor, model.TurnoFinalizado, &note)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Finalize(ctx, change, record); err != nil {
		if errors.IsCode(err, errors.CodeConflict) {
			// a concurrent finalize may have won the race
			current, getErr := s.repo.GetByID(ctx, id)
			if getErr == nil && current.Estado == model.TurnoFinalizado {
				return s.replayFinalize(ctx, actor, current)
			}
		}
		return nil, fmt.Errorf("failed to finalize turno: %w", err)
	}
	s.observe(change)

	finalized, err := s.reload(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return &model.FinalizeResult{Turno: finalized, Historia: record}, nil
}

func (s *Service) replayFinalize(ctx context.Context, actor model.Actor, turno *model.Turno) (*model.FinalizeResult, error) {
	record, err := s.records.GetByTurno(ctx, turno.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load clinical record: %w", err)
	}
	turno.Acciones = AvailableActions(turno, actor)
	return &model.FinalizeResult{Turno: turno, Historia: record, Replayed: true}, nil
}

// buildRecord validates the clinical record input. At most three dynamic
// entries, with non-empty keys unique within the record.
func buildRecord(turno *model.Turno, in model.ClinicalRecordInput, now time.Time) (*model.ClinicalRecord, error) {
	if in.Altura <= 0 || in.Peso <= 0 || in.Temperatura <= 0 {
		return nil, errors.Validation("altura, peso and temperatura must be positive")
	}
	presion := strings.TrimSpace(in.Presion)
	if presion == "" {
		return nil, errors.Validation("presion is required")
	}
	if len(in.Datos) > model.MaxDynamicEntries {
		return nil, errors.Validationf("at most %d dynamic entries are allowed", model.MaxDynamicEntries)
	}

	seen := make(map[string]bool, len(in.Datos))
	datos := make([]model.DynamicEntry, 0, len(in.Datos))
	for i, d := range in.Datos {
		clave := strings.TrimSpace(d.Clave)
		valor := strings.TrimSpace(d.Valor)
		if clave == "" || valor == "" {
			return nil, errors.Validationf("datos_dinamicos[%d]: clave and valor are required", i)
		}
		key := strings.ToLower(clave)
		if seen[key] {
			return nil, errors.Validationf("datos_dinamicos[%d]: duplicated clave %q", i, clave)
		}
		seen[key] = true
		datos = append(datos, model.DynamicEntry{Clave: clave, Valor: valor})
	}

	return &model.ClinicalRecord{
		ID:             uuid.New(),
		TurnoID:        turno.ID,
		PacienteID:     turno.PacienteID,
		EspecialistaID: turno.EspecialistaID,
		Altura:         in.Altura,
		Peso:           in.Peso,
		Temperatura:    in.Temperatura,
		Presion:        presion,
		CreatedAt:      now,
		Datos:          datos,
	}, nil
}

func (s *Service) newChange(turno *model.Turno, actor model.Actor, to model.TurnoStatus, comentario *string) (model.StatusChange, error) {
	payload := model.TurnoStatusChangedPayload{
		TurnoID:        turno.ID,
		PacienteID:     turno.PacienteID,
		EspecialistaID: turno.EspecialistaID,
		FechaInicio:    turno.FechaInicio,
		EstadoAnterior: turno.Estado,
		EstadoNuevo:    to,
		ActorID:        actor.ID,
	}
	if comentario != nil {
		payload.Comentario = *comentario
	}
	event, err := model.NewOutboxEvent(model.EventTurnoEstadoCambiado, payload)
	if err != nil {
		return model.StatusChange{}, err
	}

	return model.StatusChange{
		TurnoID:    turno.ID,
		From:       turno.Estado,
		To:         to,
		ActorID:    actor.ID,
		Comentario: comentario,
		Event:      event,
		At:         s.now(),
	}, nil
}

func (s *Service) observe(change model.StatusChange) {
	if s.metrics != nil {
		s.metrics.TurnoTransitions.WithLabelValues(string(change.From), string(change.To)).Inc()
	}
}

func (s *Service) reload(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Turno, error) {
	turno, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	turno.Acciones = AvailableActions(turno, actor)
	return turno, nil
}

func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Turno, error) {
	turno, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanView(turno, actor) {
		return nil, errors.Forbidden("you cannot view this turno")
	}
	turno.Acciones = AvailableActions(turno, actor)
	return turno, nil
}

// List returns turnos visible to actor. Patients and specialists only ever see their own.
func (s *Service) List(ctx context.Context, actor model.Actor, filter model.TurnoFilter) ([]*model.Turno, int, error) {
	switch actor.Role {
	case model.RolePaciente:
		filter.PacienteID = &actor.ID
	case model.RoleEspecialista:
		filter.EspecialistaID = &actor.ID
	case model.RoleAdmin:
	default:
		return nil, 0, errors.Forbidden("you cannot list turnos")
	}
	if filter.Estado != "" && !filter.Estado.Valid() {
		return nil, 0, errors.Validationf("unknown estado %q", filter.Estado)
	}
	if filter.Desde != nil && filter.Hasta != nil && filter.Hasta.Before(*filter.Desde) {
		return nil, 0, errors.Validation("hasta must not be before desde")
	}
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Normalize()

	turnos, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list turnos: %w", err)
	}
	for _, t := range turnos {
		t.Acciones = AvailableActions(t, actor)
	}
	return turnos, total, nil
}

func (s *Service) History(ctx context.Context, actor model.Actor, id uuid.UUID) ([]*model.TurnoHistory, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load turno history: %w", err)
	}
	return history, nil
}
