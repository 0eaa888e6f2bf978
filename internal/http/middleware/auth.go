// README: Bearer-token auth for the moderator API backed by Firebase ID tokens.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"caravan/internal/infra"
	"caravan/internal/types"
)

const (
	keyUID        = "auth.uid"
	keyRole       = "auth.role"
	keyTelegramID = "auth.tg_id"
)

// Auth verifies the Authorization bearer token and stores the caller's claims on the context.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(keyUID, token.UID)
		c.Set(keyRole, token.Role())
		if id, ok := token.TelegramID(); ok {
			c.Set(keyTelegramID, types.UserID(id))
		}
		c.Next()
	}
}

// RequireRole rejects callers whose role claim differs from role. Must run after Auth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func CallerUID(c *gin.Context) string { return c.GetString(keyUID) }

func CallerRole(c *gin.Context) string { return c.GetString(keyRole) }

// CallerTelegramID is the bot user the token is linked to through the tg_id claim.
func CallerTelegramID(c *gin.Context) (types.UserID, bool) {
	v, ok := c.Get(keyTelegramID)
	if !ok {
		return 0, false
	}
	id, ok := v.(types.UserID)
	return id, ok
}
