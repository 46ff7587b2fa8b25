package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tickwatch/internal/controllers"
	"tickwatch/internal/middleware"
)

// Router bundles everything the HTTP surface is built from.
type Router struct {
	Health    *controllers.HealthController
	Status    *controllers.StatusController
	WebSocket *controllers.WebSocketController

	Traffic          middleware.ByteCounter
	APILimiter       *middleware.RateLimiter
	ClientLimiter    *middleware.RateLimiter
	BandwidthLimiter *middleware.RateLimiter
	SecurityLogger   *middleware.SecurityLogger
	Log              *zap.Logger

	// HTTPLog logs requests and panics. Defaults to Log.
	HTTPLog *zap.Logger
}

// Engine builds the gin engine with middleware and every route group.
func (rt Router) Engine() *gin.Engine {
	if rt.Log == nil {
		rt.Log = zap.NewNop()
	}
	if rt.SecurityLogger == nil {
		rt.SecurityLogger = middleware.NewSecurityLogger(rt.Log)
	}
	if rt.HTTPLog == nil {
		rt.HTTPLog = rt.Log
	}

	r := gin.New()
	r.Use(middleware.Recovery(rt.HTTPLog))
	r.Use(middleware.RequestLogger(rt.HTTPLog))
	r.Use(middleware.SecurityHeadersMiddleware())
	if rt.Traffic != nil {
		r.Use(middleware.TrafficMiddleware(rt.Traffic))
	}
	if rt.APILimiter != nil {
		r.Use(middleware.RateLimitMiddleware("api", rt.APILimiter, rt.SecurityLogger))
	}
	if rt.BandwidthLimiter != nil {
		r.Use(middleware.BandwidthLimitMiddleware(rt.BandwidthLimiter, rt.SecurityLogger))
	}

	RegisterStatusRoutes(r, rt.Status)
	RegisterHealthRoutes(r, rt.Health)
	RegisterMetricsRoutes(r)
	if rt.WebSocket != nil {
		var limiter gin.HandlerFunc = func(c *gin.Context) { c.Next() }
		if rt.ClientLimiter != nil {
			limiter = middleware.RateLimitMiddleware("client authenticate", rt.ClientLimiter, rt.SecurityLogger)
		}
		RegisterAuthRoutes(r, rt.WebSocket, limiter)
	}
	return r
}
