package prometheus

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the metrics collected by a registry.
type Handler struct {
	handler http.Handler
}

// New serves g; a nil g serves the default registry.
func New(g prometheus.Gatherer) *Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return &Handler{handler: promhttp.HandlerFor(g, promhttp.HandlerOpts{})}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/metrics", h.Metrics)
}

func (h *Handler) Metrics(c *gin.Context) {
	h.handler.ServeHTTP(c.Writer, c.Request)
}
