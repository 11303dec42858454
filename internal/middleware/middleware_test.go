package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/pkg/auth"
	"github.com/jwalitptl/appointment-engine/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAuthenticateSetsActor(t *testing.T) {
	jwt := auth.NewJWTService("secret", "test", time.Hour)
	engine := gin.New()
	engine.Use(NewAuthMiddleware(jwt).Authenticate())
	engine.GET("/me", func(c *gin.Context) {
		actor, ok := GetActor(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, actor)
	})

	token, err := jwt.GenerateToken(model.Actor{UserID: 3, Role: model.RoleDoctor})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serve(engine, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":3,"role":"doctor"}`, w.Body.String())

	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		assert.Equal(t, http.StatusUnauthorized, serve(engine, req).Code, header)
	}
}

func TestRequireRoles(t *testing.T) {
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Role"); role != "" {
			c.Set(ContextActor, model.Actor{UserID: 1, Role: model.Role(role)})
		}
		c.Next()
	})
	engine.DELETE("/x", RequireRoles(model.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodDelete, "/x", nil)
	req.Header.Set("X-Role", "admin")
	assert.Equal(t, http.StatusNoContent, serve(engine, req).Code)

	req = httptest.NewRequest(http.MethodDelete, "/x", nil)
	req.Header.Set("X-Role", "scheduler")
	assert.Equal(t, http.StatusForbidden, serve(engine, req).Code)

	req = httptest.NewRequest(http.MethodDelete, "/x", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(engine, req).Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	w := serve(engine, req)
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))

	w = serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Header().Get(HeaderXRequestID), 36)
}

func TestRecoveryReturnsInternalError(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID(), Recovery())
	engine.GET("/", func(c *gin.Context) { panic("boom") })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
	assert.Contains(t, w.Body.String(), `"trace_id"`)
}

func TestErrorHandlerWritesAttachedError(t *testing.T) {
	engine := gin.New()
	engine.Use(ErrorHandler())
	engine.GET("/", func(c *gin.Context) { _ = c.Error(errors.NotFound("appointment", nil)) })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "appointment not found")
}

func TestTimeoutBoundsRequestContext(t *testing.T) {
	engine := gin.New()
	engine.Use(Timeout(50 * time.Millisecond))
	engine.GET("/", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, serve(engine, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestCustomValidators(t *testing.T) {
	require.NoError(t, RegisterValidators(DefaultValidationConfig()))

	engine := gin.New()
	engine.POST("/", func(c *gin.Context) {
		var req model.CreateAppointmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			appErr, details := BindError(err)
			c.JSON(appErr.HTTPStatus(), details)
			return
		}
		c.Status(http.StatusOK)
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return serve(engine, req)
	}

	assert.Equal(t, http.StatusOK, post(`{"doctor_id":3,"date":"2024-06-10","time":"09:30"}`).Code)

	w := post(`{"doctor_id":3,"date":"2024-13-40","time":"9:30"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"date"`)
	assert.Contains(t, w.Body.String(), `"field":"time"`)
	assert.Contains(t, w.Body.String(), "Time must be HH:MM")

	w = post(`{"date":"2024-06-10","time":"09:30"}`)
	assert.Contains(t, w.Body.String(), `"field":"doctor_id"`)
}

func TestRateLimiterIsPerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 1})
	engine := gin.New()
	engine.Use(rl.RateLimit())
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	from := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		return serve(engine, req).Code
	}

	assert.Equal(t, http.StatusOK, from("10.0.0.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1:1001"))
	assert.Equal(t, http.StatusOK, from("10.0.0.2:1000"))
}

func TestCORSPreflight(t *testing.T) {
	engine := gin.New()
	engine.Use(CORS(DefaultCORSConfig()))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://portal.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := serve(engine, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
