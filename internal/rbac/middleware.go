package rbac

import (
	"net/http"
	"slices"

	"telecom-routing/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireAnyRole allows access if the caller has any of the provided roles.
// Rules:
//   - admin passes every console guard
//   - call_router is admitted only where listed explicitly
//   - unknown roles are refused
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			abort(c, http.StatusUnauthorized, "Unauthorized", "role required")
			return
		}
		if !Known(role) {
			abort(c, http.StatusForbidden, "Forbidden", "forbidden")
			return
		}
		if IsAdmin(role) || slices.Contains(allowed, role) {
			c.Next()
			return
		}
		abort(c, http.StatusForbidden, "Forbidden", "forbidden")
	}
}

func abort(c *gin.Context, status int, typ, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"type": typ, "message": msg}})
}
