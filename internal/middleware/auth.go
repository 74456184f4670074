package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/pkg/auth"
	"github.com/clinicaonline/turnos-api/pkg/errors"
	"github.com/clinicaonline/turnos-api/pkg/httputil"
)

const (
	ContextActor  = "actor"
	ContextClaims = "claims"
)

// Authenticator validates an access token, including revocation
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	authenticator Authenticator
}

func NewAuthMiddleware(authenticator Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Authenticate verifies the bearer token and stores the caller as an Actor
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			httputil.RespondWithError(c, errors.Unauthorized("missing authorization header", nil))
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			httputil.RespondWithError(c, errors.Unauthorized("invalid authorization format", nil))
			return
		}

		claims, err := m.authenticator.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		role := model.Role(claims.Role)
		if !role.Valid() {
			httputil.RespondWithError(c, errors.Unauthorized("token carries an unknown role", nil))
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextActor, model.Actor{ID: claims.UserID, Role: role})
		log.Ctx(c.Request.Context()).UpdateContext(func(zc zerolog.Context) zerolog.Context {
			return zc.Str("user_id", claims.UserID.String())
		})
		c.Next()
	}
}

// RequireRole lets through callers holding one of roles. It must run after Authenticate.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			httputil.RespondWithError(c, errors.Unauthorized("authentication required", nil))
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, errors.Forbidden("your role cannot access this resource"))
	}
}

func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}

func ClaimsFrom(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
