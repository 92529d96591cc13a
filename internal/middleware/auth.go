package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/taptosell-orders/internal/auth"
)

// Context keys set by AuthMiddleware.
const (
	KeyUserID = "userID"
	KeyRole   = "role"
)

// AuthMiddleware rejects requests without a valid bearer token and stores the
// caller's identity in the gin context.
func AuthMiddleware(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Authorization header required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Invalid token format (must be Bearer)"})
			return
		}

		id, err := tokens.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Invalid or expired token"})
			return
		}

		c.Set(KeyUserID, id.UserID)
		c.Set(KeyRole, id.Role)
		c.Next()
	}
}

// AdminMiddleware must run after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(KeyRole) != auth.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Administrator access required"})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller, or 0.
func UserID(c *gin.Context) int64 {
	return c.GetInt64(KeyUserID)
}
