package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/pkg/auth"
	"github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/httputil"
)

// ContextActor is the gin context key holding the authenticated model.Actor.
const ContextActor = "actor"

type AuthMiddleware struct {
	jwt auth.JWTService
}

func NewAuthMiddleware(jwt auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// Authenticate verifies the bearer token and stores the actor in context.
// The identity it carries is trusted as given.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, &errors.AppError{Code: errors.ErrUnauthorized, Message: "missing authorization header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			httputil.RespondWithError(c, &errors.AppError{Code: errors.ErrUnauthorized, Message: "invalid authorization format"})
			return
		}

		claims, err := m.jwt.ValidateToken(parts[1])
		if err != nil {
			_ = c.Error(err)
			httputil.RespondWithError(c, &errors.AppError{Code: errors.ErrUnauthorized, Message: "invalid token", Err: err})
			return
		}

		c.Set(ContextActor, claims.Actor())
		c.Next()
	}
}

// RequireRoles rejects actors whose role is not listed.
func RequireRoles(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			httputil.RespondWithError(c, errors.Unauthorized(nil))
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, errors.Forbidden("role "+string(actor.Role)+" is not allowed here"))
	}
}

// GetActor returns the actor set by Authenticate.
func GetActor(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}
