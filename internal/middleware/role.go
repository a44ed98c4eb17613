package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/adbroker/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles. It must run after JWT.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role, ok := callerRole(c)
		if !ok {
			response.Unauthorized(c, "missing caller context")
			c.Abort()
			return
		}
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "role "+role+" may not change broker settings")
			c.Abort()
			return
		}
		c.Next()
	}
}

func callerRole(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextRole)
	if !ok {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}
