package survey

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinicaonline/turnos-api/internal/handler"
	"github.com/clinicaonline/turnos-api/internal/middleware"
	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/service/survey"
	"github.com/clinicaonline/turnos-api/pkg/httputil"
)

type Handler struct {
	service *survey.Service
	loc     *time.Location
}

func NewHandler(service *survey.Service, loc *time.Location) *Handler {
	return &Handler{service: service, loc: loc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/turnos/:id/encuesta", middleware.RequireRole(model.RolePaciente), h.Submit)
	r.GET("/turnos/:id/encuesta", h.GetByTurno)
	r.GET("/encuestas", middleware.RequireRole(model.RoleAdmin), h.List)
}

func (h *Handler) Submit(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	turnoID, err := handler.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	var req model.SubmitSurveyRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	s, err := h.service.Submit(c.Request.Context(), actor, turnoID, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, s)
}

func (h *Handler) GetByTurno(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	turnoID, err := handler.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	s, err := h.service.GetByTurno(c.Request.Context(), actor, turnoID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, s)
}

func (h *Handler) List(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var filter model.SurveyFilter
	if filter.EspecialistaID, err = handler.OptionalUUIDQuery(c, "especialista_id"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filter.DateRange, err = handler.DateRangeQuery(c, h.loc); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filter.Pagination, err = handler.PaginationQuery(c); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	surveys, total, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, surveys, filter.Page, filter.PageSize, total)
}
