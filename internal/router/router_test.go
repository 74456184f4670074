package router

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicaonline/turnos-api/internal/handler/handlertest"
	"github.com/clinicaonline/turnos-api/internal/middleware"
	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/pkg/auth"
	"github.com/clinicaonline/turnos-api/pkg/errors"
	"github.com/clinicaonline/turnos-api/pkg/metrics"
)

type tokens map[string]*auth.Claims

func (t tokens) Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error) {
	if claims, ok := t[accessToken]; ok {
		return claims, nil
	}
	return nil, errors.Unauthorized("invalid token", nil)
}

type echo struct{ path string }

func (e echo) RegisterRoutes(r *gin.RouterGroup) {
	r.GET(e.path, func(c *gin.Context) {
		actor, _ := middleware.ActorFrom(c)
		c.JSON(http.StatusOK, gin.H{"role": actor.Role})
	})
}

type split struct{ public, protected string }

func (s split) RegisterRoutes(public, protected *gin.RouterGroup) {
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) }
	public.GET(s.public, ok)
	protected.GET(s.protected, ok)
}

type metricsRoute struct{}

func (metricsRoute) RegisterRoutes(r gin.IRoutes) {
	r.GET("/metrics", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
}

func newTestRouter(t *testing.T, cfg Config) *gin.Engine {
	t.Helper()
	admin := &auth.Claims{UserID: uuid.New(), Role: string(model.RoleAdmin)}
	m := metrics.NewMetrics("test", prometheus.NewRegistry())

	return New(zerolog.Nop(), m, tokens{"admin-token": admin}, Handlers{
		Health:      echo{path: "/health/live"},
		Metrics:     metricsRoute{},
		Auth:        split{public: "/auth/ping", protected: "/auth/me"},
		User:        split{public: "/especialistas", protected: "/usuarios"},
		Specialty:   split{public: "/especialidades", protected: "/especialidades/admin"},
		Appointment: echo{path: "/turnos"},
		Schedule:    echo{path: "/especialistas/:id/horarios"},
		Medical:     echo{path: "/historias"},
		Survey:      echo{path: "/encuestas"},
		Report:      echo{path: "/reportes/ingresos"},
	}, cfg)
}

func TestRouter_PublicAndProtected(t *testing.T) {
	r := newTestRouter(t, Config{CatalogMaxAge: 300, RequestTimeout: time.Second})

	w := handlertest.Do(t, r, http.MethodGet, "/api/v1/especialidades", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=300", w.Header().Get("Cache-Control"))
	assert.Equal(t, APIVersion, w.Header().Get(middleware.HeaderAPIVersion))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))

	w = handlertest.Do(t, r, http.MethodGet, "/api/v1/turnos", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = handlertest.DoWithHeaders(t, r, http.MethodGet, "/api/v1/turnos", nil, map[string]string{
		"Authorization": "Bearer admin-token",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"ADMIN"`)
	assert.Equal(t, "private, no-store", w.Header().Get("Cache-Control"))
}

func TestRouter_EveryHandlerMounted(t *testing.T) {
	r := newTestRouter(t, Config{})
	headers := map[string]string{"Authorization": "Bearer admin-token"}

	for _, path := range []string{
		"/api/v1/health/live",
		"/api/v1/auth/ping",
		"/api/v1/auth/me",
		"/api/v1/especialistas",
		"/api/v1/usuarios",
		"/api/v1/especialidades/admin",
		"/api/v1/especialistas/" + uuid.NewString() + "/horarios",
		"/api/v1/historias",
		"/api/v1/encuestas",
		"/api/v1/reportes/ingresos",
		"/metrics",
	} {
		w := handlertest.DoWithHeaders(t, r, http.MethodGet, path, nil, headers)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	r := newTestRouter(t, Config{})

	w := handlertest.Do(t, r, http.MethodGet, "/api/v1/nada", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	env := handlertest.Decode(t, w, nil)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, string(errors.CodeNotFound), env.Code)

	w = handlertest.Do(t, r, http.MethodDelete, "/api/v1/especialidades", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	r := newTestRouter(t, Config{
		RateLimitEnabled: true,
		RateLimit:        middleware.RateLimiterConfig{Rate: 1, Burst: 1},
	})

	assert.Equal(t, http.StatusOK, handlertest.Do(t, r, http.MethodGet, "/api/v1/especialidades", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, handlertest.Do(t, r, http.MethodGet, "/api/v1/especialidades", nil).Code)
}
