package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/questforge/engine/config"
)

const ClientIDKey = "client_id"

// Auth validates the Bearer JWT token on query-interface endpoints.
// Tokens are issued out-of-band to reporting clients and dashboards.
func Auth(sec config.SecurityConfig) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx.Set(ClientIDKey, claims.ClientID)
		ctx.Next()
	}
}

// GetClientID retrieves the authenticated client ID from the Gin context.
func GetClientID(c *gin.Context) string {
	if v, exists := c.Get(ClientIDKey); exists {
		return v.(string)
	}
	return ""
}
