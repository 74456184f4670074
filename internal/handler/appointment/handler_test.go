package appointment

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicaonline/turnos-api/internal/handler/handlertest"
	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository/memory"
	"github.com/clinicaonline/turnos-api/internal/service/appointment"
	"github.com/clinicaonline/turnos-api/pkg/httputil"
	"github.com/clinicaonline/turnos-api/pkg/metrics"
)

type openAgenda struct{}

func (openAgenda) CheckBookable(ctx context.Context, especialistaID, especialidadID uuid.UUID, start time.Time) (time.Time, error) {
	return start.Add(30 * time.Minute), nil
}

type fixture struct {
	handler      *Handler
	paciente     model.Actor
	especialista model.Actor
	especialidad uuid.UUID
	booked       int
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	sp := &model.Specialty{Nombre: "Pediatría"}
	require.NoError(t, store.Specialties().Create(ctx, sp))
	pac := &model.User{Email: "p@mail.com", Nombre: "Lucía", Apellido: "Sosa", DNI: "40000001",
		Role: model.RolePaciente, Aprobado: true, EmailVerificado: true}
	esp := &model.User{Email: "e@mail.com", Nombre: "Pablo", Apellido: "Díaz", DNI: "30000001",
		Role: model.RoleEspecialista, Aprobado: true, EmailVerificado: true}
	require.NoError(t, store.Users().Create(ctx, pac, nil, nil))
	require.NoError(t, store.Users().Create(ctx, esp, []uuid.UUID{sp.ID}, nil))

	svc := appointment.NewService(store.Appointments(), store.Users(), store.MedicalRecords(), openAgenda{},
		metrics.NewMetrics("test", prometheus.NewRegistry()))

	return &fixture{
		handler:      NewHandler(svc, time.UTC),
		paciente:     model.Actor{ID: pac.ID, Role: model.RolePaciente},
		especialista: model.Actor{ID: esp.ID, Role: model.RoleEspecialista},
		especialidad: sp.ID,
	}
}

func (f *fixture) as(actor model.Actor) *gin.Engine {
	return handlertest.Router(&actor, f.handler.RegisterRoutes)
}

// book asks for a new turno one hour after the previous one
func (f *fixture) book(t *testing.T) model.Turno {
	t.Helper()
	f.booked++
	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour).Add(time.Duration(f.booked) * time.Hour)
	w := handlertest.Do(t, f.as(f.paciente), http.MethodPost, "/api/v1/turnos", map[string]interface{}{
		"especialista_id": f.especialista.ID,
		"especialidad_id": f.especialidad,
		"fecha_inicio":    start,
		"motivo":          "fiebre",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var turno model.Turno
	handlertest.Decode(t, w, &turno)
	return turno
}

func TestBook(t *testing.T) {
	f := setup(t)
	turno := f.book(t)

	assert.Equal(t, model.TurnoPendiente, turno.Estado)
	assert.Equal(t, f.paciente.ID, turno.PacienteID)
	assert.Equal(t, "Pediatría", turno.EspecialidadNombre)
}

func TestBook_Validation(t *testing.T) {
	f := setup(t)
	r := f.as(f.paciente)

	w := handlertest.Do(t, r, http.MethodPost, "/api/v1/turnos", map[string]interface{}{
		"especialista_id": f.especialista.ID,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "VALIDATION", handlertest.Decode(t, w, nil).Code)

	w = handlertest.Do(t, r, http.MethodPost, "/api/v1/turnos", `{"motivo":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = handlertest.Do(t, r, http.MethodPost, "/api/v1/turnos", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBook_SpecialistForbidden(t *testing.T) {
	f := setup(t)
	w := handlertest.Do(t, f.as(f.especialista), http.MethodPost, "/api/v1/turnos", map[string]interface{}{})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLifecycle(t *testing.T) {
	f := setup(t)
	turno := f.book(t)
	base := "/api/v1/turnos/" + turno.ID.String()

	w := handlertest.Do(t, f.as(f.paciente), http.MethodPost, base+"/aceptar", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "patients cannot accept")

	w = handlertest.Do(t, f.as(f.especialista), http.MethodPost, base+"/aceptar", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var accepted model.Turno
	handlertest.Decode(t, w, &accepted)
	assert.Equal(t, model.TurnoAceptado, accepted.Estado)

	w = handlertest.Do(t, f.as(f.especialista), http.MethodPost, base+"/aceptar", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = handlertest.Do(t, f.as(f.especialista), http.MethodPost, base+"/finalizar", map[string]interface{}{
		"comentario": "control ok",
		"historia_clinica": map[string]interface{}{
			"altura": 110, "peso": 19.5, "temperatura": 36.8, "presion": "100/60",
			"datos_dinamicos": []map[string]string{{"clave": "vacunas", "valor": "al día"}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result model.FinalizeResult
	handlertest.Decode(t, w, &result)
	assert.Equal(t, model.TurnoFinalizado, result.Turno.Estado)
	require.NotNil(t, result.Historia)
	assert.Len(t, result.Historia.Datos, 1)

	w = handlertest.Do(t, f.as(f.paciente), http.MethodGet, base+"/historial", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []model.TurnoHistory
	handlertest.Decode(t, w, &history)
	assert.Len(t, history, 3)
}

func TestRejectAndCancel_RequireComment(t *testing.T) {
	f := setup(t)
	turno := f.book(t)
	base := "/api/v1/turnos/" + turno.ID.String()

	w := handlertest.Do(t, f.as(f.especialista), http.MethodPost, base+"/rechazar", map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = handlertest.Do(t, f.as(f.paciente), http.MethodPost, base+"/cancelar", map[string]string{"comentario": "viajo"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cancelled model.Turno
	handlertest.Decode(t, w, &cancelled)
	assert.Equal(t, model.TurnoCancelado, cancelled.Estado)
	require.NotNil(t, cancelled.Comentario)
	assert.Equal(t, "viajo", *cancelled.Comentario)
}

func TestGet(t *testing.T) {
	f := setup(t)
	turno := f.book(t)

	w := handlertest.Do(t, f.as(f.paciente), http.MethodGet, "/api/v1/turnos/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = handlertest.Do(t, f.as(f.paciente), http.MethodGet, "/api/v1/turnos/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	stranger := model.Actor{ID: uuid.New(), Role: model.RolePaciente}
	w = handlertest.Do(t, f.as(stranger), http.MethodGet, "/api/v1/turnos/"+turno.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestList(t *testing.T) {
	f := setup(t)
	f.book(t)
	f.book(t)

	w := handlertest.Do(t, f.as(f.especialista), http.MethodGet, "/api/v1/turnos?estado=pendiente&page_size=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page httputil.PaginatedResponse
	handlertest.Decode(t, w, &page)
	assert.Equal(t, 2, page.Pagination.Total)
	assert.Equal(t, 1, page.Pagination.PageSize)
	assert.Len(t, page.Items, 1)

	w = handlertest.Do(t, f.as(f.especialista), http.MethodGet, "/api/v1/turnos?desde=ayer", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = handlertest.Do(t, f.as(f.especialista), http.MethodGet, fmt.Sprintf("/api/v1/turnos?especialidad_id=%s", uuid.New()), nil)
	require.Equal(t, http.StatusOK, w.Code)
	handlertest.Decode(t, w, &page)
	assert.Equal(t, 0, page.Pagination.Total)
}
