package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicaonline/turnos-api/internal/email"
	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository/memory"
	"github.com/clinicaonline/turnos-api/pkg/messaging"
)

type mail struct {
	kind string
	to   string
	data email.TurnoStatusData
	tok  string
}

type fakeMailer struct {
	sent []mail
}

func (f *fakeMailer) SendVerification(ctx context.Context, to, nombre, token string) error {
	f.sent = append(f.sent, mail{kind: "verification", to: to, tok: token})
	return nil
}

func (f *fakeMailer) SendTurnoStatus(ctx context.Context, to string, data email.TurnoStatusData) error {
	f.sent = append(f.sent, mail{kind: "status", to: to, data: data})
	return nil
}

func (f *fakeMailer) SendTurnoNuevo(ctx context.Context, to string, data email.TurnoStatusData) error {
	f.sent = append(f.sent, mail{kind: "nuevo", to: to, data: data})
	return nil
}

func setup(t *testing.T) (*messaging.Dispatcher, *fakeMailer, *model.User, *model.User) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()

	paciente := &model.User{Base: model.Base{ID: uuid.New()}, Email: "ana@example.com", Nombre: "Ana", Apellido: "Pérez", DNI: "1", Role: model.RolePaciente}
	especialista := &model.User{Base: model.Base{ID: uuid.New()}, Email: "juan@clinica.com", Nombre: "Juan", Apellido: "López", DNI: "2", Role: model.RoleEspecialista, Aprobado: true}
	require.NoError(t, store.Users().Create(ctx, paciente, nil, nil))
	require.NoError(t, store.Users().Create(ctx, especialista, nil, nil))

	mailer := &fakeMailer{}
	d := messaging.NewDispatcher()
	NewService(store.Users(), mailer).Register(d)
	return d, mailer, paciente, especialista
}

func message(t *testing.T, eventType string, payload interface{}) messaging.Message {
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return messaging.Message{ID: uuid.New(), Type: eventType, Payload: raw, OccurredAt: time.Now()}
}

func TestUserRegistered_SendsVerification(t *testing.T) {
	d, mailer, paciente, _ := setup(t)

	err := d.Dispatch(context.Background(), message(t, model.EventUsuarioRegistrado, model.UserRegisteredPayload{
		UserID:            paciente.ID,
		Email:             paciente.Email,
		Nombre:            paciente.FullName(),
		VerificationToken: "tok",
	}))
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "verification", mailer.sent[0].kind)
	assert.Equal(t, "tok", mailer.sent[0].tok)
}

func TestTurnoSolicitado_NotifiesSpecialist(t *testing.T) {
	d, mailer, paciente, especialista := setup(t)

	err := d.Dispatch(context.Background(), message(t, model.EventTurnoSolicitado, model.TurnoStatusChangedPayload{
		TurnoID:        uuid.New(),
		PacienteID:     paciente.ID,
		EspecialistaID: especialista.ID,
		EstadoNuevo:    model.TurnoPendiente,
		ActorID:        paciente.ID,
	}))
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "nuevo", mailer.sent[0].kind)
	assert.Equal(t, especialista.Email, mailer.sent[0].to)
	assert.Equal(t, "Ana Pérez", mailer.sent[0].data.Contraparte)
}

func TestTurnoEstadoCambiado_NotifiesOtherSide(t *testing.T) {
	d, mailer, paciente, especialista := setup(t)
	ctx := context.Background()

	base := model.TurnoStatusChangedPayload{
		TurnoID:        uuid.New(),
		PacienteID:     paciente.ID,
		EspecialistaID: especialista.ID,
	}

	rejected := base
	rejected.EstadoAnterior, rejected.EstadoNuevo = model.TurnoPendiente, model.TurnoRechazado
	rejected.Comentario = "agenda completa"
	rejected.ActorID = especialista.ID
	require.NoError(t, d.Dispatch(ctx, message(t, model.EventTurnoEstadoCambiado, rejected)))

	cancelled := base
	cancelled.EstadoAnterior, cancelled.EstadoNuevo = model.TurnoAceptado, model.TurnoCancelado
	cancelled.ActorID = paciente.ID
	require.NoError(t, d.Dispatch(ctx, message(t, model.EventTurnoEstadoCambiado, cancelled)))

	require.Len(t, mailer.sent, 2)
	assert.Equal(t, paciente.Email, mailer.sent[0].to)
	assert.Equal(t, "agenda completa", mailer.sent[0].data.Comentario)
	assert.Equal(t, "RECHAZADO", mailer.sent[0].data.Estado)
	assert.Equal(t, especialista.Email, mailer.sent[1].to)
	assert.Equal(t, "Ana Pérez", mailer.sent[1].data.Contraparte)
}

func TestTurnoEstadoCambiado_UnknownUser(t *testing.T) {
	d, mailer, paciente, _ := setup(t)

	err := d.Dispatch(context.Background(), message(t, model.EventTurnoEstadoCambiado, model.TurnoStatusChangedPayload{
		PacienteID:     paciente.ID,
		EspecialistaID: uuid.New(),
		EstadoNuevo:    model.TurnoAceptado,
	}))
	assert.Error(t, err)
	assert.Empty(t, mailer.sent)
}
