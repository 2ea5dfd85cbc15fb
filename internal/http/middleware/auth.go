package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"incident-service/internal/auth"
	"incident-service/internal/model"
)

const principalKey = "principal"

// Auth validates the Bearer token and stores the principal in the context.
func Auth(parser *auth.Parser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		principal, err := parser.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

func PrincipalFrom(c *gin.Context) (*model.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*model.Principal)
	return p, ok
}
