package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tickwatch/internal/models"
)

// HealthReader is the live view of the health monitor.
type HealthReader interface {
	Snapshot() models.HealthSnapshot
}

// HistoryReader serves exported cadence points.
type HistoryReader interface {
	GetHistory(duration time.Duration) []models.CadencePoint
	Latest() *models.CadencePoint
}

type HealthController struct {
	health  HealthReader
	history HistoryReader
}

func NewHealthController(health HealthReader, history HistoryReader) *HealthController {
	return &HealthController{health: health, history: history}
}

// GetHealth returns the current gauges and transport counters.
func (hc *HealthController) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, hc.health.Snapshot())
}

// GetHistory returns exported cadence points in a window
// Query params: duration=5m|10m|1h|24h (default: 10m)
func (hc *HealthController) GetHistory(c *gin.Context) {
	durationStr := c.DefaultQuery("duration", "10m")

	duration, err := time.ParseDuration(durationStr)
	if err != nil || duration <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid duration format"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"duration": durationStr,
		"data":     hc.history.GetHistory(duration),
	})
}

// GetLatest returns the most recent cadence point.
func (hc *HealthController) GetLatest(c *gin.Context) {
	latest := hc.history.Latest()
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cadence point exported yet"})
		return
	}
	c.JSON(http.StatusOK, latest)
}
