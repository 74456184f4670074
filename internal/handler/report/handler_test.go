package report

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
	"github.com/clinicaonline/turnos-api/internal/service/report"
	"github.com/clinicaonline/turnos-api/pkg/httputil"
)

type fakeReports struct {
	rng    model.DateRange
	estado model.TurnoStatus
}

func (f *fakeReports) TurnosPorEspecialidad(ctx context.Context, rng model.DateRange) ([]model.LabelCount, error) {
	f.rng = rng
	return []model.LabelCount{{Label: "Clínica médica", Total: 7}}, nil
}

func (f *fakeReports) TurnosPorDia(ctx context.Context, rng model.DateRange) ([]model.DailyCount, error) {
	f.rng = rng
	return []model.DailyCount{{Dia: time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC), Total: 3}}, nil
}

func (f *fakeReports) TurnosPorEspecialista(ctx context.Context, rng model.DateRange, estado model.TurnoStatus) ([]model.LabelCount, error) {
	f.rng, f.estado = rng, estado
	return []model.LabelCount{{Label: "Ana Ruiz", Total: 2}}, nil
}

type fixture struct {
	repo  *fakeReports
	store *memory.Store
	h     *Handler
}

func setup() *fixture {
	repo := &fakeReports{}
	store := memory.NewStore()
	return &fixture{repo: repo, store: store, h: NewHandler(report.NewService(repo, store.LoginLogRepo()), time.UTC)}
}

func (f *fixture) as(role model.Role) *gin.Engine {
	actor := model.Actor{ID: uuid.New(), Role: role}
	return handlertest.Router(&actor, f.h.RegisterRoutes)
}

func TestReports_DateRange(t *testing.T) {
	f := setup()

	w := handlertest.Do(t, f.as(model.RoleAdmin), http.MethodGet,
		"/api/v1/reportes/turnos-por-especialidad?desde=2025-05-01&hasta=2025-05-31", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rows []model.LabelCount
	handlertest.Decode(t, w, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, 7, rows[0].Total)

	require.NotNil(t, f.repo.rng.Desde)
	require.NotNil(t, f.repo.rng.Hasta)
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), *f.repo.rng.Desde)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), *f.repo.rng.Hasta, "hasta includes the whole day")

	w = handlertest.Do(t, f.as(model.RoleAdmin), http.MethodGet,
		"/api/v1/reportes/turnos-por-dia?desde=2025-05-10&hasta=2025-05-01", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestReports_PorEspecialista(t *testing.T) {
	f := setup()

	w := handlertest.Do(t, f.as(model.RoleAdmin), http.MethodGet, "/api/v1/reportes/turnos-finalizados", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.TurnoFinalizado, f.repo.estado)

	w = handlertest.Do(t, f.as(model.RoleAdmin), http.MethodGet, "/api/v1/reportes/turnos-solicitados", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.TurnoStatus(""), f.repo.estado)
}

func TestReports_LoginLogs(t *testing.T) {
	f := setup()
	ctx := context.Background()
	u := &model.User{Email: "a@mail.com", Nombre: "Ana", Apellido: "Gil", DNI: "1234567", Role: model.RolePaciente}
	require.NoError(t, f.store.Users().Create(ctx, u, nil, nil))
	require.NoError(t, f.store.LoginLogRepo().Create(ctx, u.ID))
	require.NoError(t, f.store.LoginLogRepo().Create(ctx, u.ID))

	w := handlertest.Do(t, f.as(model.RoleAdmin), http.MethodGet, "/api/v1/reportes/ingresos?page_size=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page httputil.PaginatedResponse
	handlertest.Decode(t, w, &page)
	assert.Equal(t, 2, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPage)
}

func TestReports_AdminOnly(t *testing.T) {
	f := setup()
	for _, path := range []string{"turnos-por-especialidad", "turnos-por-dia", "turnos-solicitados", "turnos-finalizados", "ingresos"} {
		w := handlertest.Do(t, f.as(model.RoleEspecialista), http.MethodGet, "/api/v1/reportes/"+path, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}
}
