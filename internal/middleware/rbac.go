package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
	"github.com/Oerlinker/BackendAISi2/pkg/response"
)

// RequireRoles only lets callers whose JWT role is listed through.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := value.(*models.JWTClaims)
		if !ok || claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
