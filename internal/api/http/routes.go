package http

import (
	"github.com/gin-gonic/gin"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/api/middleware"
)

// RegisterRoutes mounts every registry endpoint on r. events serves the
// index event stream and may be nil.
func RegisterRoutes(r gin.IRouter, h *Handlers, events gin.HandlerFunc) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/metrics/json", h.MetricsSummary)

	api := r.Group("/", middleware.Token())

	api.POST("/sessions", h.Login)
	api.DELETE("/sessions", h.Logout)
	api.GET("/sessions/self", h.Self)

	api.GET("/providers", h.ListProviders)
	api.POST("/providers", h.SaveProvider)
	api.GET("/providers/:key", h.GetProvider)
	api.DELETE("/providers/:key", h.DeleteProvider)
	api.GET("/providers/:key/services", h.ListProviderServices)

	api.GET("/services", h.SearchServices)
	api.POST("/services", h.SaveService)
	api.GET("/services/:key", h.GetService)
	api.DELETE("/services/:key", h.DeleteService)
	api.GET("/services/:key/rfps", h.ServiceRFPs)

	api.POST("/index/rfps", h.AddRFP)
	api.DELETE("/index/rfps", h.RemoveRFP)
	api.GET("/index/rfps", h.QueryRFP)
	api.GET("/index/rfps/list", h.ListRFPs)
	api.POST("/index/refresh", h.RefreshIndex)
	if events != nil {
		api.GET("/index/events", events)
	}

	api.POST("/ops/:name", h.Dispatch)
}
