package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prodflow/prodflow/pkg/auth"
	"github.com/prodflow/prodflow/pkg/tenant"
)

const scopeKey = "tenant_scope"

// Auth validates the bearer token and stores the caller's tenant scope on the
// request context.
func Auth(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authorization := c.GetHeader("Authorization")
		if authorization == "" {
			abortUnauthorized(c, "missing authorization")
			return
		}
		parts := strings.SplitN(authorization, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, "invalid authorization")
			return
		}
		token := strings.TrimSpace(parts[1])
		if token == "" {
			abortUnauthorized(c, "empty token")
			return
		}

		claims, err := tokens.Validate(token)
		if err != nil {
			abortUnauthorized(c, "invalid or expired token")
			return
		}
		actor, err := claims.Actor()
		if err != nil {
			abortUnauthorized(c, "invalid token claims")
			return
		}
		c.Set(scopeKey, tenant.For(actor))
		c.Set("user_id", actor.ID)
		c.Set("company_id", actor.CompanyID.String())
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized", "message": msg})
}

// Scope returns the scope set by Auth. Requests that did not pass Auth get
// the zero scope, which matches nothing.
func Scope(c *gin.Context) tenant.Scope {
	if v, ok := c.Get(scopeKey); ok {
		if s, ok := v.(tenant.Scope); ok {
			return s
		}
	}
	return tenant.Scope{}
}
