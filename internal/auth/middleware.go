package auth

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys set by RequireRole
const (
	ContextEmail = "admin_email"
	ContextRole  = "role"
)

// RequireRole accepts bearer tokens signed with secret whose role is one of roles
func RequireRole(secret string, roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		if secret == "" {
			log.Printf("Error: %s %s rejected, JWT_SECRET is not set", c.Request.Method, c.FullPath())
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authentication is not configured"})
			return
		}

		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		claims, err := ValidateToken(secret, strings.TrimSpace(raw))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, ErrExpiredToken) {
				msg = "token has expired"
			}
			log.Printf("Warning: rejected token from %s: %v", c.ClientIP(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		if !allowed[claims.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}

		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}
