package services

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"tickwatch/internal/logger"
	"tickwatch/internal/models"
)

const sinkTimeout = 5 * time.Second

// CadenceSource is what the collector drains every export interval.
type CadenceSource interface {
	TakeTPS() models.ExtremaSummary
	TakeSPT() models.ExtremaSummary
	Snapshot() models.HealthSnapshot
}

// HistorySource is implemented by sinks that can replay stored points.
type HistorySource interface {
	Recent(ctx context.Context, n int64) ([]models.CadencePoint, error)
}

// CadenceCollector periodically drains the monitor's TPS/SPT accumulators
// into time-series points.
type CadenceCollector struct {
	mu            sync.RWMutex
	source        CadenceSource
	sink          HistorySink
	serverID      int
	points        []models.CadencePoint
	maxDataPoints int
	interval      time.Duration
	log           *zap.Logger
	now           func() time.Time

	running        bool
	stopCh         chan struct{}
	done           chan struct{}
	consecFailures int
}

// NewCadenceCollector creates a collector. sink may be nil.
func NewCadenceCollector(source CadenceSource, sink HistorySink, serverID int, interval time.Duration, maxDataPoints int, log *zap.Logger) *CadenceCollector {
	if log == nil {
		log = zap.NewNop()
	}
	if maxDataPoints < 1 {
		maxDataPoints = 1
	}
	return &CadenceCollector{
		source:        source,
		sink:          sink,
		serverID:      serverID,
		points:        []models.CadencePoint{},
		maxDataPoints: maxDataPoints,
		interval:      interval,
		log:           log.With(logger.Scope("cadence.collector")),
		now:           time.Now,
	}
}

// Restore seeds the in-memory history from the sink, if it can replay.
func (c *CadenceCollector) Restore(ctx context.Context) error {
	src, ok := c.sink.(HistorySource)
	if !ok {
		return nil
	}
	recent, err := src.Recent(ctx, int64(c.maxDataPoints))
	if err != nil {
		return err
	}
	// Stored newest first
	slices.Reverse(recent)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.points = append(recent, c.points...)
	c.trim()
	c.log.Info("restored cadence history", zap.Int("points", len(recent)))
	return nil
}

// Start begins exporting in the background. Calling it twice is a no-op.
func (c *CadenceCollector) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	stopCh, done := c.stopCh, c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-stopCh:
				return
			}
		}
	}()

	c.log.Info("cadence collector started", zap.Duration("interval", c.interval))
}

// Stop halts exporting and waits for an in-flight export to finish.
func (c *CadenceCollector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	done := c.done
	c.mu.Unlock()

	<-done
	c.log.Info("cadence collector stopped")
}

// collect drains the accumulators and records one point.
// The sink write happens outside the lock so readers are never blocked on I/O.
func (c *CadenceCollector) collect() models.CadencePoint {
	point := models.CadencePoint{
		Timestamp: c.now(),
		ServerID:  c.serverID,
		TPS:       c.source.TakeTPS(),
		SPT:       c.source.TakeSPT(),
		Health:    c.source.Snapshot(),
	}

	c.mu.Lock()
	c.points = append(c.points, point)
	c.trim()
	c.mu.Unlock()

	publishCadence(point)

	c.log.Debug("cadence point exported",
		zap.Float64("tps_mean", point.TPS.Mean),
		zap.Float64("spt_max", point.SPT.Max),
		zap.Float64("missed_ticks", point.Health.MissedTicks))

	if c.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		err := c.sink.Store(ctx, point)
		cancel()
		c.recordSinkResult(err)
	}
	return point
}

func (c *CadenceCollector) recordSinkResult(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.consecFailures = 0
		return
	}
	SinkFailures.Inc()
	c.consecFailures++
	if c.consecFailures >= 3 {
		c.log.Error("persistent history sink failures", zap.Int("failures", c.consecFailures), zap.Error(err))
	} else {
		c.log.Warn("failed to store cadence point", zap.Error(err))
	}
}

// trim drops the oldest points beyond capacity. Caller holds mu.
func (c *CadenceCollector) trim() {
	if extra := len(c.points) - c.maxDataPoints; extra > 0 {
		c.points = slices.Clone(c.points[extra:])
	}
}

// GetHistory returns points newer than duration ago, oldest first.
func (c *CadenceCollector) GetHistory(duration time.Duration) []models.CadencePoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cutoffTime := c.now().Add(-duration)
	filtered := []models.CadencePoint{}
	for _, p := range c.points {
		if p.Timestamp.After(cutoffTime) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// Latest returns the most recent point, or nil before the first export.
func (c *CadenceCollector) Latest() *models.CadencePoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.points) == 0 {
		return nil
	}
	p := c.points[len(c.points)-1]
	return &p
}
