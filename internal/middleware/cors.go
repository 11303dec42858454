package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       time.Duration
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			HeaderXRequestID,
		},
		MaxAge: 12 * time.Hour,
	}
}

func CORS(config CORSConfig) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  config.AllowMethods,
		AllowHeaders:  config.AllowHeaders,
		ExposeHeaders: []string{"Content-Length", HeaderXRequestID},
		MaxAge:        config.MaxAge,
	}
	// Credentials stay off; tokens travel in the Authorization header.
	for _, o := range config.AllowOrigins {
		if o == "*" {
			cc.AllowAllOrigins = true
			break
		}
	}
	if !cc.AllowAllOrigins {
		cc.AllowOrigins = config.AllowOrigins
	}
	return cors.New(cc)
}
