package routes

import (
	"github.com/gin-gonic/gin"

	"tickwatch/internal/controllers"
)

func RegisterHealthRoutes(r *gin.Engine, hc *controllers.HealthController) {
	health := r.Group("/health")
	{
		health.GET("", hc.GetHealth)
		health.GET("/history", hc.GetHistory)
		health.GET("/latest", hc.GetLatest)
	}
}
