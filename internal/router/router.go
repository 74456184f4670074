package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/clinicaonline/turnos-api/internal/middleware"
	"github.com/clinicaonline/turnos-api/pkg/errors"
	"github.com/clinicaonline/turnos-api/pkg/httputil"
	"github.com/clinicaonline/turnos-api/pkg/metrics"
)

const APIVersion = "1.0"

// Handler registers routes that all need an authenticated caller
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// SplitHandler registers anonymous and authenticated routes separately
type SplitHandler interface {
	RegisterRoutes(public, protected *gin.RouterGroup)
}

type Handlers struct {
	Health      Handler
	Metrics     interface{ RegisterRoutes(gin.IRoutes) }
	Auth        SplitHandler
	User        SplitHandler
	Specialty   SplitHandler
	Appointment Handler
	Schedule    Handler
	Medical     Handler
	Survey      Handler
	Report      Handler
}

type Config struct {
	RequestTimeout   time.Duration
	MaxBodyBytes     int64
	RateLimitEnabled bool
	RateLimit        middleware.RateLimiterConfig
	CORS             middleware.CORSConfig
	HSTS             bool
	// CatalogMaxAge is how long clients may cache the public catalogs, in seconds
	CatalogMaxAge    int
}

// New builds the engine. Logger runs before Authenticate so the user id
// lands on the request logger.
func New(base zerolog.Logger, m *metrics.Metrics, authn middleware.Authenticator, h Handlers, cfg Config) *gin.Engine {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(base),
		middleware.Recovery(),
		middleware.Metrics(m),
		middleware.SecurityHeaders(cfg.HSTS),
		middleware.CORS(cfg.CORS),
		middleware.ErrorHandler(),
	)

	engine.NoRoute(func(c *gin.Context) {
		httputil.RespondWithError(c, errors.NotFound("route", nil))
	})
	engine.NoMethod(func(c *gin.Context) {
		httputil.RespondWithError(c, &errors.AppError{
			Code:    errors.CodeBadRequest,
			Message: "method not allowed",
			Status:  http.StatusMethodNotAllowed,
		})
	})

	if h.Metrics != nil {
		h.Metrics.RegisterRoutes(engine)
	}

	api := engine.Group("/api/v1",
		middleware.Version(APIVersion),
		middleware.SizeLimit(cfg.MaxBodyBytes),
		middleware.Timeout(cfg.RequestTimeout),
	)
	if cfg.RateLimitEnabled {
		api.Use(middleware.NewRateLimiter(cfg.RateLimit).RateLimit())
	}

	h.Health.RegisterRoutes(api)

	public := api.Group("", middleware.Cache(middleware.PrivateNoStore()))
	catalog := api.Group("", middleware.Cache(middleware.PublicCatalogCache(cfg.CatalogMaxAge)))
	protected := api.Group("",
		middleware.NewAuthMiddleware(authn).Authenticate(),
		middleware.Cache(middleware.PrivateNoStore()),
		middleware.Audit(),
	)

	h.Auth.RegisterRoutes(public, protected)
	h.User.RegisterRoutes(catalog, protected)
	h.Specialty.RegisterRoutes(catalog, protected)

	for _, handler := range []Handler{h.Appointment, h.Schedule, h.Medical, h.Survey, h.Report} {
		handler.RegisterRoutes(protected)
	}

	return engine
}
