package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/appointment-engine/internal/middleware"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type PublicHandler interface {
	RegisterRoutes(gin.IRoutes)
}

type Router struct {
	engine       *gin.Engine
	auth         *middleware.AuthMiddleware
	appointmentH Handler
	public       []PublicHandler
	metrics      *metrics.Metrics
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORSConfig       middleware.CORSConfig
	RequestTimeout   time.Duration
}

// NewRouter builds the engine. public handlers (health, metrics) are
// mounted at the root without authentication.
func NewRouter(
	auth *middleware.AuthMiddleware,
	appointmentH Handler,
	m *metrics.Metrics,
	config RouterConfig,
	public ...PublicHandler,
) *Router {
	engine := gin.New()

	if err := middleware.RegisterValidators(middleware.DefaultValidationConfig()); err != nil {
		panic(err)
	}

	r := &Router{
		engine:       engine,
		auth:         auth,
		appointmentH: appointmentH,
		public:       public,
		metrics:      m,
	}

	// Request id first so every later middleware can log it
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		r.metricsMiddleware(),
		middleware.CORS(config.CORSConfig),
	)

	if config.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	engine.Use(middleware.Timeout(config.RequestTimeout))

	return r
}

func (r *Router) Setup() {
	for _, h := range r.public {
		h.RegisterRoutes(r.engine)
	}

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.appointmentH.RegisterRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.metrics == nil {
			c.Next()
			return
		}
		start := time.Now()

		c.Next()

		// Route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		r.metrics.RequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.metrics.RequestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
