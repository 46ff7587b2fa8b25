package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// LoopChecker reports whether the tick loop is still making progress.
type LoopChecker interface {
	Healthy(now time.Time, maxAge time.Duration) (bool, time.Duration)
	MaxTickAge() time.Duration
	Ticks() uint64
}

type StatusController struct {
	loop LoopChecker
	now  func() time.Time
}

func NewStatusController(loop LoopChecker) *StatusController {
	return &StatusController{loop: loop, now: time.Now}
}

// GetStatus always answers healthy; it only proves the process serves HTTP.
func (sc *StatusController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// GetReady answers 503 when the tick loop has stalled.
func (sc *StatusController) GetReady(c *gin.Context) {
	maxAge := sc.loop.MaxTickAge()
	ok, age := sc.loop.Healthy(sc.now(), maxAge)

	body := gin.H{
		"ticks":        sc.loop.Ticks(),
		"last_tick_ms": age.Milliseconds(),
		"max_age_ms":   maxAge.Milliseconds(),
	}
	if !ok {
		body["status"] = "stalled"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	c.JSON(http.StatusOK, body)
}
