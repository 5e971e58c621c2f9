package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// RequireRoles enforces a bearer HS256 token whose role is one of roles and
// stores the caller's Identity on the context.
func RequireRoles(signingKey, issuer string, roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "missing bearer token"))
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		id, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "invalid token"))
			return
		}
		if !id.Is(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody("FORBIDDEN", "access denied for role "+string(id.Role)))
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// FromContext returns the identity stored by RequireRoles.
func FromContext(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

func errorBody(code, desc string) gin.H {
	return gin.H{"status": "error", "error": gin.H{"code": code, "desc": desc}}
}
