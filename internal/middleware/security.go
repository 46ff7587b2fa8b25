package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tickwatch/internal/logger"
)

// RateLimiter implements token bucket rate limiting per IP
type RateLimiter struct {
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a per-IP limiter allowing limit events per second
// with the given burst.
func NewRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

// GetLimiter gets or creates a limiter for an IP address
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if v, exists := rl.visitors[ip]; exists {
		v.lastSeen = now
		return v.limiter
	}
	v := &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst), lastSeen: now}
	rl.visitors[ip] = v
	return v.limiter
}

// Len returns the number of tracked IPs.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// Sweep forgets IPs not seen for idle and returns how many were removed.
// A forgotten IP starts again with a full bucket.
func (rl *RateLimiter) Sweep(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	removed := 0
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is cancelled.
func (rl *RateLimiter) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep(idle)
		}
	}
}

// RateLimitMiddleware enforces rate limiting per IP. name tags the log line
// so the API and client-authenticate limiters can be told apart.
func RateLimitMiddleware(name string, limiter *RateLimiter, sec *SecurityLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.GetLimiter(ip).Allow() {
			sec.LogRateLimited(ip, name)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": name + " rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// SecurityLogger logs security events
type SecurityLogger struct {
	log *zap.Logger
}

// NewSecurityLogger creates a new security logger. A nil logger discards events.
func NewSecurityLogger(log *zap.Logger) *SecurityLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &SecurityLogger{log: log.With(logger.Scope("security"))}
}

// LogFailedAuth logs failed authentication attempts
func (sl *SecurityLogger) LogFailedAuth(ip string, reason string) {
	sl.log.Warn("failed authentication", zap.String("ip", ip), zap.String("reason", reason))
}

// LogRateLimited logs a request rejected by a limiter
func (sl *SecurityLogger) LogRateLimited(ip string, limiter string) {
	sl.log.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("limiter", limiter))
}

// LogWebSocketConnected logs successful WebSocket connections
func (sl *SecurityLogger) LogWebSocketConnected(ip string, serverID int, client string) {
	sl.log.Info("websocket connected",
		zap.String("ip", ip), zap.Int("server_id", serverID), zap.String("client", client))
}

// LogWebSocketDisconnected logs WebSocket disconnections
func (sl *SecurityLogger) LogWebSocketDisconnected(ip string, clientID string) {
	sl.log.Info("websocket disconnected", zap.String("ip", ip), zap.String("client_id", clientID))
}
