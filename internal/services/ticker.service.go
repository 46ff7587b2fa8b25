package services

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tickwatch/internal/logger"
)

// TickRecorder receives one report per completed tick.
type TickRecorder interface {
	RecordTick(now time.Time, elapsed float64)
}

// TickLoop drives the host's fixed-rate loop and reports every tick to the
// health monitor. Ticks run sequentially on the goroutine calling Run.
type TickLoop struct {
	period   time.Duration
	recorder TickRecorder
	step     func(now time.Time)
	log      *zap.Logger

	lastTick atomic.Int64 // unix nanos
	ticks    atomic.Uint64
}

// NewTickLoop creates a loop that calls step (may be nil) every period.
func NewTickLoop(period time.Duration, recorder TickRecorder, step func(now time.Time), log *zap.Logger) *TickLoop {
	if log == nil {
		log = zap.NewNop()
	}
	return &TickLoop{
		period:   period,
		recorder: recorder,
		step:     step,
		log:      log.With(logger.Scope("tick.loop")),
	}
}

// Run ticks until ctx is cancelled and returns ctx.Err().
func (l *TickLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	l.log.Info("tick loop started", zap.Duration("period", l.period))
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			l.log.Info("tick loop stopped", zap.Uint64("ticks", l.ticks.Load()))
			return ctx.Err()
		case <-ticker.C:
			now := time.Now()
			if l.step != nil {
				l.step(now)
			}

			elapsed := l.period
			if !last.IsZero() {
				elapsed = now.Sub(last)
			}
			last = now

			l.recorder.RecordTick(now, elapsed.Seconds())
			l.lastTick.Store(now.UnixNano())
			l.ticks.Add(1)
		}
	}
}

// Ticks returns the number of completed ticks.
func (l *TickLoop) Ticks() uint64 {
	return l.ticks.Load()
}

// Healthy reports whether the loop has ticked within maxAge of now. A loop
// that never ticked is unhealthy.
func (l *TickLoop) Healthy(now time.Time, maxAge time.Duration) (bool, time.Duration) {
	last := l.lastTick.Load()
	if last == 0 {
		return false, 0
	}
	t := time.Unix(0, last)
	if now.Before(t) {
		return true, 0
	}
	age := now.Sub(t)
	return age <= maxAge, age
}

// MaxTickAge is how stale the last tick may be before the loop is
// considered stuck: five periods, but never under a second.
func (l *TickLoop) MaxTickAge() time.Duration {
	return max(5*l.period, time.Second)
}
