package survey

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicaonline/turnos-api/internal/handler/handlertest"
	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository/memory"
	"github.com/clinicaonline/turnos-api/internal/service/survey"
	"github.com/clinicaonline/turnos-api/pkg/httputil"
)

type fixture struct {
	handler      *Handler
	store        *memory.Store
	paciente     model.Actor
	especialista model.Actor
	turno        *model.Turno
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	pac := &model.User{Email: "p@mail.com", Nombre: "Elena", Apellido: "Cruz", DNI: "42000001", Role: model.RolePaciente, Aprobado: true}
	esp := &model.User{Email: "e@mail.com", Nombre: "Hugo", Apellido: "Ríos", DNI: "27000001", Role: model.RoleEspecialista, Aprobado: true}
	require.NoError(t, store.Users().Create(ctx, pac, nil, nil))
	require.NoError(t, store.Users().Create(ctx, esp, nil, nil))

	turno := &model.Turno{
		PacienteID:     pac.ID,
		EspecialistaID: esp.ID,
		EspecialidadID: uuid.New(),
		FechaInicio:    time.Now().UTC().Add(-2 * time.Hour),
		FechaFin:       time.Now().UTC().Add(-90 * time.Minute),
		Motivo:         "control",
	}
	require.NoError(t, store.Appointments().Create(ctx, turno, nil))

	return &fixture{
		handler:      NewHandler(survey.NewService(store.Surveys(), store.Appointments()), time.UTC),
		store:        store,
		paciente:     model.Actor{ID: pac.ID, Role: model.RolePaciente},
		especialista: model.Actor{ID: esp.ID, Role: model.RoleEspecialista},
		turno:        turno,
	}
}

func (f *fixture) as(actor model.Actor) *gin.Engine {
	return handlertest.Router(&actor, f.handler.RegisterRoutes)
}

func (f *fixture) path() string {
	return "/api/v1/turnos/" + f.turno.ID.String() + "/encuesta"
}

func TestSubmit(t *testing.T) {
	f := setup(t)
	body := map[string]interface{}{"calificacion": 5, "comentario": "Excelente atención", "recomendaria": true}

	w := handlertest.Do(t, f.as(f.paciente), http.MethodPost, f.path(), body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "turno is not finalized yet")

	f.store.SetTurnoStatus(f.turno.ID, model.TurnoFinalizado)

	w = handlertest.Do(t, f.as(f.especialista), http.MethodPost, f.path(), body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = handlertest.Do(t, f.as(f.paciente), http.MethodPost, f.path(), body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created model.Survey
	handlertest.Decode(t, w, &created)
	assert.Equal(t, 5, created.Calificacion)
	assert.True(t, created.Recomendaria)

	w = handlertest.Do(t, f.as(f.paciente), http.MethodPost, f.path(), body)
	assert.Equal(t, http.StatusConflict, w.Code, "one survey per turno")

	w = handlertest.Do(t, f.as(f.especialista), http.MethodGet, f.path(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.Survey
	handlertest.Decode(t, w, &got)
	assert.Equal(t, created.ID, got.ID)
}

func TestSubmit_Validation(t *testing.T) {
	f := setup(t)
	f.store.SetTurnoStatus(f.turno.ID, model.TurnoFinalizado)

	for name, body := range map[string]map[string]interface{}{
		"calificacion out of range": {"calificacion": 6, "recomendaria": true},
		"recomendaria missing":      {"calificacion": 3},
	} {
		t.Run(name, func(t *testing.T) {
			w := handlertest.Do(t, f.as(f.paciente), http.MethodPost, f.path(), body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		})
	}
}

func TestList_AdminOnly(t *testing.T) {
	f := setup(t)
	admin := model.Actor{ID: uuid.New(), Role: model.RoleAdmin}

	w := handlertest.Do(t, f.as(f.paciente), http.MethodGet, "/api/v1/encuestas", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = handlertest.Do(t, f.as(admin), http.MethodGet, "/api/v1/encuestas?especialista_id="+f.especialista.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page httputil.PaginatedResponse
	handlertest.Decode(t, w, &page)
	assert.Equal(t, 0, page.Pagination.Total)
}
