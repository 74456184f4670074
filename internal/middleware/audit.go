package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Audit writes one log line per mutating request with the caller and the
// outcome. It must run after Authenticate.
func Audit() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		action := ""
		switch c.Request.Method {
		case "POST":
			action = "create"
		case "PUT", "PATCH":
			action = "update"
		case "DELETE":
			action = "delete"
		default:
			return
		}

		event := log.Ctx(c.Request.Context()).Info().
			Str("audit_action", action).
			Str("route", c.FullPath()).
			Int("status", c.Writer.Status())
		if actor, ok := ActorFrom(c); ok {
			event = event.Str("actor_id", actor.ID.String()).Str("actor_role", string(actor.Role))
		}
		if id := c.Param("id"); id != "" {
			event = event.Str("entity_id", id)
		}
		event.Msg("audit")
	}
}
