package handler

import "github.com/gin-gonic/gin"

// Handlers groups the HTTP handlers mounted by RegisterRoutes. Slips and
// Stream are optional features and may be nil.
type Handlers struct {
	Leaves  *LeaveHandler
	Views   *ViewHandler
	Slips   *SlipHandler
	Stream  *StreamHandler
	Metrics *MetricsHandler
}

// RegisterRoutes mounts probes at the root and the API under prefix.
func RegisterRoutes(r gin.IRouter, prefix string, h Handlers) {
	if h.Metrics != nil {
		r.GET("/health", h.Metrics.Health)
		r.GET("/ready", h.Metrics.Ready)
		r.GET("/metrics", h.Metrics.Prometheus)
	}

	api := r.Group(prefix)
	if h.Metrics != nil {
		api.GET("/metrics/summary", h.Metrics.Summary)
	}

	leaves := api.Group("/leaves")
	leaves.GET("", h.Leaves.List)
	leaves.GET("/statistics", h.Leaves.Statistics)
	leaves.GET("/grades", h.Leaves.Grades)
	leaves.GET("/export", h.Leaves.Export)
	leaves.POST("/refresh", h.Leaves.Refresh)
	leaves.GET("/:id", h.Leaves.Get)

	views := api.Group("/views")
	views.POST("", h.Views.Create)
	views.GET("/:id", h.Views.Get)
	views.PATCH("/:id/criteria", h.Views.UpdateCriteria)
	views.POST("/:id/next", h.Views.NextPage)
	views.POST("/:id/prev", h.Views.PrevPage)
	views.DELETE("/:id", h.Views.Delete)

	if h.Slips != nil {
		leaves.POST("/:id/slip", h.Slips.Create)
		slips := api.Group("/slips")
		slips.GET("/download", h.Slips.Download)
		slips.GET("/verify", h.Slips.Verify)
		slips.GET("/:jobId", h.Slips.Status)
	}

	if h.Stream != nil {
		api.GET("/stream", h.Stream.Subscribe)
	}
}
