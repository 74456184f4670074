package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/clinicaonline/turnos-api/internal/handler"
	"github.com/clinicaonline/turnos-api/internal/middleware"
	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/service/auth"
	"github.com/clinicaonline/turnos-api/internal/service/user"
	"github.com/clinicaonline/turnos-api/pkg/errors"
	"github.com/clinicaonline/turnos-api/pkg/httputil"
)

type Handler struct {
	svc   *auth.Service
	users *user.Service
}

func NewHandler(svc *auth.Service, users *user.Service) *Handler {
	return &Handler{svc: svc, users: users}
}

// RegisterRoutes mounts the anonymous endpoints on public and the session
// endpoints on protected.
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup) {
	authGroup := public.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.RefreshToken)
		authGroup.POST("/verify-email", h.VerifyEmail)
		authGroup.GET("/verify-email", h.VerifyEmail)
	}

	session := protected.Group("/auth")
	{
		session.POST("/logout", h.Logout)
		session.GET("/me", h.Me)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	u, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, u)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, tokens)
}

func (h *Handler) RefreshToken(c *gin.Context) {
	var req model.RefreshTokenRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	tokens, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, tokens)
}

// VerifyEmail accepts the token as ?token= (the emailed link) or in a JSON body
func (h *Handler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" && c.Request.Method == "POST" {
		var req model.VerifyEmailRequest
		if err := handler.BindJSON(c, &req); err != nil {
			httputil.RespondWithError(c, err)
			return
		}
		token = req.Token
	}
	if token == "" {
		httputil.RespondWithError(c, errors.BadRequest("verification token is required", nil))
		return
	}

	if err := h.svc.VerifyEmail(c.Request.Context(), token); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"email_verificado": true})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout revokes the presented access token. The body is optional.
func (h *Handler) Logout(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		httputil.RespondWithError(c, errors.Unauthorized("authentication required", nil))
		return
	}

	var req logoutRequest
	if c.Request.ContentLength > 0 {
		if err := handler.BindJSON(c, &req); err != nil {
			httputil.RespondWithError(c, err)
			return
		}
	}

	if err := h.svc.Logout(c.Request.Context(), claims, req.RefreshToken); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"logged_out": true})
}

func (h *Handler) Me(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	u, err := h.users.Me(c.Request.Context(), actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, u)
}
