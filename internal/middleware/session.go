package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/response"
	"github.com/stemsi/labexam-backend/internal/service"
)

// RequireSessionJWT validates the session token issued by start. The token is
// read from the Authorization header or, for WebSocket upgrades, ?token=.
// Any failure is SESSION_INVALID so the client knows to start again.
func RequireSessionJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := extractAndValidateClaims(c, authService)
		if err != nil || claims.TokenType != service.TokenTypeSession || claims.SessionID == uuid.Nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalid)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// SessionID returns the session id of a request that passed RequireSessionJWT.
func SessionID(c *gin.Context) uuid.UUID {
	if claims := GetClaims(c); claims != nil && claims.TokenType == service.TokenTypeSession {
		return claims.SessionID
	}
	return uuid.Nil
}
