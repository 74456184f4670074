package appointment

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinicaonline/turnos-api/internal/handler"
	"github.com/clinicaonline/turnos-api/internal/middleware"
	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/service/appointment"
	"github.com/clinicaonline/turnos-api/pkg/httputil"
)

type Handler struct {
	service *appointment.Service
	loc     *time.Location
}

func NewHandler(service *appointment.Service, loc *time.Location) *Handler {
	return &Handler{service: service, loc: loc}
}

// RegisterRoutes expects r to be behind authentication
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	turnos := r.Group("/turnos")
	{
		turnos.POST("", middleware.RequireRole(model.RolePaciente, model.RoleAdmin), h.Book)
		turnos.GET("", h.List)
		turnos.GET("/:id", h.Get)
		turnos.GET("/:id/historial", h.History)
		turnos.POST("/:id/aceptar", middleware.RequireRole(model.RoleEspecialista), h.Accept)
		turnos.POST("/:id/rechazar", middleware.RequireRole(model.RoleEspecialista), h.Reject)
		turnos.POST("/:id/cancelar", h.Cancel)
		turnos.POST("/:id/finalizar", middleware.RequireRole(model.RoleEspecialista), h.Finalize)
	}
}

func (h *Handler) Book(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	var req model.BookTurnoRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	turno, err := h.service.Book(c.Request.Context(), actor, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, turno)
}

func (h *Handler) List(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	filter := model.TurnoFilter{
		Estado: model.TurnoStatus(strings.ToUpper(c.Query("estado"))),
		Search: c.Query("q"),
	}
	if filter.PacienteID, err = handler.OptionalUUIDQuery(c, "paciente_id"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filter.EspecialistaID, err = handler.OptionalUUIDQuery(c, "especialista_id"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filter.EspecialidadID, err = handler.OptionalUUIDQuery(c, "especialidad_id"); err != nil {
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

	turnos, total, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, turnos, filter.Page, filter.PageSize, total)
}

func (h *Handler) Get(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	turno, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, turno)
}

func (h *Handler) History(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	history, err := h.service.History(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, history)
}

func (h *Handler) Accept(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	turno, err := h.service.Accept(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, turno)
}

func (h *Handler) Reject(c *gin.Context) {
	h.withComment(c, h.service.Reject)
}

func (h *Handler) Cancel(c *gin.Context) {
	h.withComment(c, h.service.Cancel)
}

type commentAction func(ctx context.Context, actor model.Actor, id uuid.UUID, comentario string) (*model.Turno, error)

// withComment runs the transitions that require a comentario
func (h *Handler) withComment(c *gin.Context, action commentAction) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	var req model.CommentRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	turno, err := action(c.Request.Context(), actor, id, req.Comentario)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, turno)
}

func (h *Handler) Finalize(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	var req model.FinalizeTurnoRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	result, err := h.service.Finalize(c.Request.Context(), actor, id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}
