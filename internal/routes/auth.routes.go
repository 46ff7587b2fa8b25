package routes

import (
	"github.com/gin-gonic/gin"

	"tickwatch/internal/controllers"
)

// RegisterAuthRoutes registers WebSocket routes only.
// Token generation must be done via CLI (no HTTP endpoints).
func RegisterAuthRoutes(r *gin.Engine, wc *controllers.WebSocketController, limiter gin.HandlerFunc) {
	r.GET("/ws", limiter, wc.HandleWebSocket)
}
