package auth

import (
	"net/http"
	"strings"

	"storefront-gateway/internal/pipeline"
	"storefront-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// BearerToken extracts the token from an Authorization header, or "".
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get(authorizationHeader))
	if len(raw) <= len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(raw[len(bearerPrefix):])
}

// RequireAccessToken verifies an access token and injects identity into request context.
// Every failure gets the same 401 so callers cannot tell expiry from tampering.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := BearerToken(c.Request)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, pipeline.Error("unauthenticated"))
			return
		}

		p, err := m.VerifyAccessToken(tok)
		if err != nil {
			logger.FromGin(c).Debug("access token rejected",
				"component", "auth",
				"reason", err.Error(),
				"path", c.Request.URL.Path,
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, pipeline.Error("unauthenticated"))
			return
		}

		id := Identity{CustomerID: p.Subject, Email: p.Email, Role: p.Role}
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))

		// Also store on gin context for handler convenience.
		c.Set("customer_id", id.CustomerID)
		c.Set("role", id.Role)

		c.Next()
	}
}
