package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/quick-elections/backend/internal/auth"
	"github.com/quick-elections/backend/pkg/response"
)

// AdminKeyHeader carries the admin credential on privileged requests.
const AdminKeyHeader = "X-Admin-Key"

// RequireAdmin returns a middleware that rejects requests whose X-Admin-Key
// header does not verify against the auth provider. The credential is sent on
// every privileged request; there is no server-side session.
func RequireAdmin(provider auth.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !provider.Verify(c.GetHeader(AdminKeyHeader)) {
			response.Forbidden(c, "admin privileges required")
			c.Abort()
			return
		}
		c.Next()
	}
}
