package schedule

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinicaonline/turnos-api/internal/handler"
	"github.com/clinicaonline/turnos-api/internal/middleware"
	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/service/schedule"
	"github.com/clinicaonline/turnos-api/pkg/errors"
	"github.com/clinicaonline/turnos-api/pkg/httputil"
)

type Handler struct {
	service *schedule.Service
	loc     *time.Location
}

func NewHandler(service *schedule.Service, loc *time.Location) *Handler {
	return &Handler{service: service, loc: loc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	esp := r.Group("/especialistas/:id")
	{
		esp.GET("/horarios", h.ListHorarios)
		esp.PUT("/horarios", middleware.RequireRole(model.RoleEspecialista, model.RoleAdmin), h.SetHorarios)
		esp.GET("/disponibilidad", h.AvailableSlots)
	}
}

func (h *Handler) ListHorarios(c *gin.Context) {
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	horarios, err := h.service.List(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, horarios)
}

// SetHorarios replaces the whole weekly agenda. An empty list clears it.
func (h *Handler) SetHorarios(c *gin.Context) {
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
	var req model.SetScheduleRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	horarios, err := h.service.Set(c.Request.Context(), actor, id, req.Horarios)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, horarios)
}

func (h *Handler) AvailableSlots(c *gin.Context) {
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	especialidadID := uuid.Nil
	if sp, err := handler.OptionalUUIDQuery(c, "especialidad_id"); err != nil {
		httputil.RespondWithError(c, err)
		return
	} else if sp != nil {
		especialidadID = *sp
	}

	var from time.Time
	desde, err := handler.TimeQuery(c, "desde", h.loc)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if desde != nil {
		from = *desde
	}

	days := 0
	if raw := c.Query("dias"); raw != "" {
		if days, err = strconv.Atoi(raw); err != nil {
			httputil.RespondWithError(c, errors.BadRequest("invalid dias", err))
			return
		}
	}

	slots, err := h.service.AvailableSlots(c.Request.Context(), id, especialidadID, from, days)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, slots)
}
