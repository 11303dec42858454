package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/httputil"
)

// ErrorHandler logs errors attached with c.Error and writes the last one
// when the handler did not respond itself.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		traceID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			if errors.CodeOf(e.Err) != errors.ErrInternal {
				continue
			}
			log.Error().
				Err(e.Err).
				Str("trace_id", traceID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}
		httputil.RespondWithError(c, c.Errors.Last().Err)
	}
}
