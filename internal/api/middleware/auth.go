package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

// AuthTokenHeader carries a session token for clients that cannot set Authorization
const AuthTokenHeader = "X-Auth-Token"

const tokenKey = "auth_token"

// BearerToken extracts a session token from the request. Authorization
// takes precedence over X-Auth-Token.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get(AuthTokenHeader))
}

// Token stores the request's session token (possibly empty) on the context.
// Validation is left to the operation so that every protected call reports
// the same Auth error whether the token is absent or unknown.
func Token() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(tokenKey, BearerToken(c.Request))
		c.Next()
	}
}

// RequireToken rejects requests that carry no token at all.
func RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{
				Error: "missing session token",
				Kind:  fault.Auth.String(),
			})
			return
		}
		c.Set(tokenKey, token)
		c.Next()
	}
}

// GetToken returns the token stored by Token or RequireToken
func GetToken(c *gin.Context) string {
	if v, ok := c.Get(tokenKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return BearerToken(c.Request)
}
