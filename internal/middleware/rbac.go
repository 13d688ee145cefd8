package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/response"
)

// RequireRole checks that the account token carries one of the given roles.
// Must run after RequireUserJWT.
func RequireRole(code response.ErrCode, roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if slices.Contains(roles, claims.Role) {
			c.Next()
			return
		}

		response.AbortFail(c, http.StatusForbidden, code)
	}
}

// RequireStaff admits professors and administrators.
func RequireStaff() gin.HandlerFunc {
	return RequireRole(response.ErrStaffAccessOnly, model.UserRoleProfessor, model.UserRoleAdmin)
}

// RequireAdmin admits administrators only.
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(response.ErrAdminAccessOnly, model.UserRoleAdmin)
}
