package user

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clinicaonline/turnos-api/internal/handler"
	"github.com/clinicaonline/turnos-api/internal/middleware"
	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/service/user"
	"github.com/clinicaonline/turnos-api/pkg/errors"
	"github.com/clinicaonline/turnos-api/pkg/httputil"
)

type Handler struct {
	service *user.Service
}

func NewHandler(service *user.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.GET("/especialistas", h.ListSpecialists)

	users := protected.Group("/usuarios")
	{
		users.GET("", middleware.RequireRole(model.RoleAdmin), h.ListUsers)
		users.POST("/admins", middleware.RequireRole(model.RoleAdmin), h.CreateAdmin)
		users.GET("/:id", h.GetUser)
		users.PUT("/:id/aprobacion", middleware.RequireRole(model.RoleAdmin), h.SetApproval)
	}
}

// ListSpecialists is public so the booking screen can work before login
func (h *Handler) ListSpecialists(c *gin.Context) {
	especialidadID, err := handler.OptionalUUIDQuery(c, "especialidad_id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	specialists, err := h.service.Specialists(c.Request.Context(), especialidadID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, specialists)
}

func (h *Handler) ListUsers(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	filter := model.UserFilter{
		Role:   model.Role(strings.ToUpper(c.Query("role"))),
		Search: c.Query("q"),
	}
	if raw := c.Query("aprobado"); raw != "" {
		aprobado, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.RespondWithError(c, errors.BadRequest("invalid aprobado", err))
			return
		}
		filter.Aprobado = &aprobado
	}
	if filter.Pagination, err = handler.PaginationQuery(c); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	users, total, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, users, filter.Page, filter.PageSize, total)
}

func (h *Handler) CreateAdmin(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	var req model.CreateAdminRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	admin, err := h.service.CreateAdmin(c.Request.Context(), actor, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, admin)
}

func (h *Handler) GetUser(c *gin.Context) {
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

	u, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, u)
}

func (h *Handler) SetApproval(c *gin.Context) {
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
	var req model.ApprovalRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	u, err := h.service.SetApproval(c.Request.Context(), actor, id, *req.Aprobado)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, u)
}
