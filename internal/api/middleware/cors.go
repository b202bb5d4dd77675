package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/tracing"
)

// CORSConfig selects which browser origins may call the registry API.
type CORSConfig struct {
	AllowOrigins []string // "*" allows any origin
	MaxAge       time.Duration
}

// DefaultCORSConfig allows any origin
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		MaxAge:       12 * time.Hour,
	}
}

// Methods and headers the registry API actually uses. Tokens travel in
// headers, never cookies, so credentials stay disabled.
var (
	corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}

	corsAllowHeaders = []string{
		"Content-Type",
		"Accept",
		"Origin",
		"Authorization",
		AuthTokenHeader,
		RequestIDHeader,
		tracing.TraceHeader,
		tracing.SpanHeader,
	}

	corsExposeHeaders = []string{RequestIDHeader, tracing.TraceHeader, tracing.SpanHeader}
)

// CORS creates the CORS middleware. Requests from origins outside the list
// are rejected with 403.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  corsMethods,
		AllowHeaders:  corsAllowHeaders,
		ExposeHeaders: corsExposeHeaders,
		MaxAge:        cfg.MaxAge,
	}

	allowAll := len(cfg.AllowOrigins) == 0
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowOrigins
	}
	return cors.New(c)
}
