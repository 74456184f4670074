package report

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinicaonline/turnos-api/internal/handler"
	"github.com/clinicaonline/turnos-api/internal/middleware"
	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/service/report"
	"github.com/clinicaonline/turnos-api/pkg/httputil"
)

// Handler serves the admin statistics screens
type Handler struct {
	service *report.Service
	loc     *time.Location
}

func NewHandler(service *report.Service, loc *time.Location) *Handler {
	return &Handler{service: service, loc: loc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	reportes := r.Group("/reportes", middleware.RequireRole(model.RoleAdmin))
	{
		reportes.GET("/turnos-por-especialidad", h.TurnosPorEspecialidad)
		reportes.GET("/turnos-por-dia", h.TurnosPorDia)
		reportes.GET("/turnos-solicitados", h.TurnosSolicitados)
		reportes.GET("/turnos-finalizados", h.TurnosFinalizados)
		reportes.GET("/ingresos", h.LoginLogs)
	}
}

func (h *Handler) TurnosPorEspecialidad(c *gin.Context) {
	respondCounts(c, h.loc, h.service.TurnosPorEspecialidad)
}

func (h *Handler) TurnosSolicitados(c *gin.Context) {
	respondCounts(c, h.loc, h.service.TurnosSolicitadosPorEspecialista)
}

func (h *Handler) TurnosFinalizados(c *gin.Context) {
	respondCounts(c, h.loc, h.service.TurnosFinalizadosPorEspecialista)
}

func (h *Handler) TurnosPorDia(c *gin.Context) {
	respondCounts(c, h.loc, h.service.TurnosPorDia)
}

// respondCounts runs a grouped report over the desde/hasta range of the query
func respondCounts[T any](c *gin.Context, loc *time.Location, run func(context.Context, model.Actor, model.DateRange) ([]T, error)) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	rng, err := handler.DateRangeQuery(c, loc)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	rows, err := run(c.Request.Context(), actor, rng)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, rows)
}

func (h *Handler) LoginLogs(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	rng, err := handler.DateRangeQuery(c, h.loc)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	page, err := handler.PaginationQuery(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	logs, total, err := h.service.LoginLogs(c.Request.Context(), actor, rng, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, logs, page.Page, page.PageSize, total)
}
