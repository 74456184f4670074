package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/clinicaonline/turnos-api/pkg/httputil"
)

const pingTimeout = 2 * time.Second

type Handler struct {
	db    *sqlx.DB
	redis *redis.Client
}

// NewHandler checks db on readiness. rdb is optional.
func NewHandler(db *sqlx.DB, rdb *redis.Client) *Handler {
	return &Handler{
		db:    db,
		redis: rdb,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	httputil.RespondWithSuccess(c, gin.H{"status": "UP"})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	checks := gin.H{"database": "UP"}
	ready := true
	if err := h.db.PingContext(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("database ping failed")
		checks["database"] = "DOWN"
		ready = false
	}
	if h.redis != nil {
		checks["redis"] = "UP"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("redis ping failed")
			checks["redis"] = "DOWN"
			ready = false
		}
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, httputil.Response{
			Status:  httputil.StatusError,
			Code:    "UNAVAILABLE",
			Message: "dependencies are not ready",
			Data:    checks,
		})
		return
	}
	httputil.RespondWithSuccess(c, checks)
}
