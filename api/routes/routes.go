package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/rmaraujo/fiscalflow/api/handlers"
	"github.com/rmaraujo/fiscalflow/api/middleware"
)

// SetupRoutes wires every HTTP route.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handlers.HealthCheck)

	batches := v1.Group("/batches")
	{
		batches.POST("", h.Batch.SubmitBatch)
		batches.POST("/folder", h.Batch.SubmitFolder)
		batches.GET("/status/:taskId", h.Batch.GetStatus)
	}
}
