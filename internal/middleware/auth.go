package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"sif-backend/pkg/jwt"
	"sif-backend/pkg/response"
)

// AuthMiddleware validates the bearer token and derives the session user.
// Every sync operation is scoped to the uid set here; a request without a
// valid token never reaches a handler.
func AuthMiddleware(jwtManager *jwt.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(parts[1])
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		c.Set("uid", claims.UID)
		c.Set("device", claims.Device)
		c.Next()
	}
}

// SessionUID returns the authenticated uid from the request context
func SessionUID(c *gin.Context) (string, bool) {
	val, exists := c.Get("uid")
	if !exists {
		return "", false
	}
	uid, ok := val.(string)
	return uid, ok && uid != ""
}
