package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Logger returns a middleware that logs HTTP requests. Bodies are never logged.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		statusCode := c.Writer.Status()
		event := log.Info()
		msg := "Request processed"
		switch {
		case statusCode >= 500:
			event = log.Error()
			msg = "Server error"
		case statusCode >= 400:
			event = log.Warn()
			msg = "Client error"
		}

		if actor, ok := GetActor(c); ok {
			event = event.Int64("user_id", actor.UserID).Str("role", string(actor.Role))
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("request_id", c.GetString(ContextRequestID)).
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", time.Since(start)).
			Str("user_agent", c.Request.UserAgent()).
			Msg(msg)
	}
}
