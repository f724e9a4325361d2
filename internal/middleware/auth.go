package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wavelink-backend/pkg/jwt"
)

// AuthMiddleware creates a Gin middleware that validates bearer JWT tokens.
// If valid, it sets user_id, username, and role in the Gin context. Every
// downstream identity decision (relay stamping, channel authorization) reads
// user_id from here and nowhere else.
func AuthMiddleware(jwtManager *jwt.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// extractToken pulls the bearer token from the Authorization header, falling
// back to the access_token query parameter for WebSocket upgrades (browsers
// cannot set headers on WebSocket connections).
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}

	return c.Query("access_token")
}
