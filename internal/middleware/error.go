package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/clinicaonline/turnos-api/pkg/httputil"
)

// ErrorHandler renders the last error a handler attached with c.Error when
// nothing was written yet.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		httputil.RespondWithError(c, c.Errors.Last().Err)
	}
}
