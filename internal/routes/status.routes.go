package routes

import (
	"github.com/gin-gonic/gin"

	"tickwatch/internal/controllers"
)

func RegisterStatusRoutes(r *gin.Engine, sc *controllers.StatusController) {
	status := r.Group("/status")
	{
		status.GET("", sc.GetStatus)
		status.GET("/ready", sc.GetReady)
	}
}
