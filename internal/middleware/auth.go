package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/focusroom/internal/account"
	"github.com/lalith-99/focusroom/internal/auth"
)

// Context keys under which the middleware stores verified claims.
// Constants so a typo is a compile error, not a silent nil.
const (
	ContextKeyUID         = "uid"
	ContextKeyDisplayName = "display_name"
	ContextKeyEmail       = "email"
)

// AuthMiddleware validates the Bearer token on every request in its
// group. Invalid or missing tokens abort the chain with 401; valid
// ones leave the claims in the request context for GetAccount.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format, expected: Bearer <token>",
			})
			return
		}

		claims, err := auth.ParseToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyUID, claims.UID)
		c.Set(ContextKeyDisplayName, claims.DisplayName)
		c.Set(ContextKeyEmail, claims.Email)
		c.Next()
	}
}

// GetAccount rebuilds the signed-in account from the claims the
// middleware stored. Returns nil when the middleware did not run,
// which a handler should treat as unauthenticated.
func GetAccount(c *gin.Context) *account.Account {
	uid, exists := c.Get(ContextKeyUID)
	if !exists {
		return nil
	}
	uidStr, ok := uid.(string)
	if !ok || uidStr == "" {
		return nil
	}
	return &account.Account{
		UID:         uidStr,
		DisplayName: c.GetString(ContextKeyDisplayName),
		Email:       c.GetString(ContextKeyEmail),
	}
}
