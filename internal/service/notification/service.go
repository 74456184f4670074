package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/clinicaonline/turnos-api/internal/email"
	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
	"github.com/clinicaonline/turnos-api/pkg/messaging"
)

// Service turns published domain events into emails
type Service struct {
	users  repository.UserRepository
	mailer email.Service
}

func NewService(users repository.UserRepository, mailer email.Service) *Service {
	return &Service{
		users:  users,
		mailer: mailer,
	}
}

// Register subscribes the service's handlers on d
func (s *Service) Register(d *messaging.Dispatcher) {
	messaging.HandleJSON(d, model.EventUsuarioRegistrado, s.UserRegistered)
	messaging.HandleJSON(d, model.EventTurnoSolicitado, s.TurnoSolicitado)
	messaging.HandleJSON(d, model.EventTurnoEstadoCambiado, s.TurnoEstadoCambiado)
}

func (s *Service) UserRegistered(ctx context.Context, p model.UserRegisteredPayload) error {
	if p.VerificationToken == "" {
		return nil
	}
	return s.mailer.SendVerification(ctx, p.Email, p.Nombre, p.VerificationToken)
}

// TurnoSolicitado tells the specialist a patient asked for a slot
func (s *Service) TurnoSolicitado(ctx context.Context, p model.TurnoStatusChangedPayload) error {
	especialista, paciente, err := s.parties(ctx, p)
	if err != nil {
		return err
	}
	return s.mailer.SendTurnoNuevo(ctx, especialista.Email, email.TurnoStatusData{
		Destinatario: especialista.FullName(),
		Contraparte:  paciente.FullName(),
		FechaInicio:  p.FechaInicio,
		Estado:       string(p.EstadoNuevo),
	})
}

// TurnoEstadoCambiado notifies the other side of a transition: the patient,
// or the specialist when the patient cancelled.
func (s *Service) TurnoEstadoCambiado(ctx context.Context, p model.TurnoStatusChangedPayload) error {
	especialista, paciente, err := s.parties(ctx, p)
	if err != nil {
		return err
	}

	to, from := paciente, especialista
	if p.ActorID == paciente.ID {
		to, from = especialista, paciente
	}

	log.Ctx(ctx).Debug().
		Str("turno_id", p.TurnoID.String()).
		Str("estado", string(p.EstadoNuevo)).
		Str("to", to.ID.String()).
		Msg("notifying turno status change")

	return s.mailer.SendTurnoStatus(ctx, to.Email, email.TurnoStatusData{
		Destinatario: to.FullName(),
		Contraparte:  from.FullName(),
		FechaInicio:  p.FechaInicio,
		Estado:       string(p.EstadoNuevo),
		Comentario:   p.Comentario,
	})
}

func (s *Service) parties(ctx context.Context, p model.TurnoStatusChangedPayload) (*model.User, *model.User, error) {
	especialista, err := s.users.GetByID(ctx, p.EspecialistaID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load specialist %s: %w", p.EspecialistaID, err)
	}
	paciente, err := s.users.GetByID(ctx, p.PacienteID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load patient %s: %w", p.PacienteID, err)
	}
	return especialista, paciente, nil
}
