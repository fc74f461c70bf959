// Package middleware provides HTTP middleware for the presentation layer.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/security"
)

const claimsKey = "editorClaims"

// TokenValidator checks an editor token.
type TokenValidator interface {
	ValidateToken(token string) (*security.EditorClaims, error)
}

// EditorAuthMiddleware requires a valid editor token, from the Authorization
// header or, for EventSource and websocket clients that cannot set headers,
// the token query parameter.
func EditorAuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// BearerToken returns the request token or an empty string.
func BearerToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return c.Query("token")
}

// GetEditorClaims retrieves the validated claims from gin context
func GetEditorClaims(c *gin.Context) (*security.EditorClaims, bool) {
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*security.EditorClaims)
	return claims, ok
}
