// Package middleware holds the per-route guard chain: the access gate
// verifies bearer tokens and attaches the decoded identity; the role gate
// layers a capability check on top.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/taskhive/taskhive-auth/internal/domain"
	"github.com/taskhive/taskhive-auth/internal/service"
)

const (
	identityKey    = "identity"
	accessTokenKey = "accessToken"
)

// Auth is the access gate: it extracts the bearer token, verifies signature
// and expiry, rejects revoked tokens and attaches the identity claims for
// downstream authorization.
type Auth struct {
	AuthService *service.AuthService
}

// Gate returns the gin middleware enforcing authentication.
func (m *Auth) Gate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "Authorization header required")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			abortUnauthorized(c, "Bearer token required")
			return
		}

		raw := parts[1]
		identity, err := m.AuthService.Authenticate(c.Request.Context(), raw)
		if err != nil {
			var svcErr *service.Error
			if errors.As(err, &svcErr) {
				abortUnauthorized(c, svcErr.Message)
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Something went wrong",
			})
			return
		}

		c.Set(identityKey, identity)
		c.Set(accessTokenKey, raw)
		c.Next()
	}
}

// RequireRole is the role gate: Forbidden unless the attached identity holds
// the required role. Pure function of the already-verified identity.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		if !ok || identity.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "Only admin can access this",
			})
			return
		}
		c.Next()
	}
}

// GetIdentity exposes the verified identity to handlers.
func GetIdentity(c *gin.Context) (domain.Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := value.(domain.Identity)
	return identity, ok
}

// GetAccessToken returns the raw bearer token the gate verified; logout
// feeds it into the revocation ledger.
func GetAccessToken(c *gin.Context) (string, bool) {
	value, ok := c.Get(accessTokenKey)
	if !ok {
		return "", false
	}
	raw, ok := value.(string)
	return raw, ok
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": message,
	})
}
