package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	claimsKey = "claims"
	bearerKey = "bearer"
)

// OperatorAuth enforces bearer JWT tokens signed with HS256. The raw token is
// kept on the context so it can be forwarded to the remote services.
func OperatorAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		SetClaims(c, claims, tokenStr)
		c.Next()
	}
}

// SetClaims stores authenticated claims and the raw bearer token on c.
func SetClaims(c *gin.Context, claims Claims, bearer string) {
	c.Set(claimsKey, claims)
	c.Set(bearerKey, bearer)
}

// ClaimsFrom returns the claims set by OperatorAuth.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

// BearerFrom returns the raw bearer token set by OperatorAuth.
func BearerFrom(c *gin.Context) string {
	return c.GetString(bearerKey)
}
