package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"tickwatch/internal/logger"
	"tickwatch/internal/models"
)

const (
	// GaugeCacheInterval is how long probed gauges are reused (probing is
	// relatively expensive).
	GaugeCacheInterval = 30 * time.Second

	// MissedTicksWindow is the length of one missed-tick measurement.
	MissedTicksWindow = 30 * time.Second

	// MaxTickSeconds bounds a single SPT sample.
	MaxTickSeconds = 10.0

	defaultProbeTimeout = 2 * time.Second
)

var ErrInvalidTickPeriod = errors.New("tick period must be a positive duration")

// HealthConfig configures a HealthMonitor.
type HealthConfig struct {
	// TickPeriod is the host loop's nominal duration of one tick.
	TickPeriod time.Duration
	// ProbeTimeout bounds one probe update (default 2s).
	ProbeTimeout time.Duration
	// Now is the clock used for gauge caching (default time.Now).
	Now func() time.Time
}

// HealthMonitor keeps track of the health of the server: cached host gauges
// and the cadence of the tick loop.
//
// Gauges and tick state are guarded separately. RecordTick must only be
// called from the tick loop, in wall-clock order; everything else may be
// called from any goroutine.
type HealthMonitor struct {
	tickPeriod   float64 // seconds
	probe        Probe
	probeTimeout time.Duration
	transport    TransportCounters
	log          *zap.Logger
	now          func() time.Time

	gaugeMu     sync.Mutex
	lastRefresh time.Time
	cpu         float64
	cpuSteal    float64
	ram         float64
	swap        float64

	tickMu           sync.RWMutex
	missedTicks      float64
	missedTicksStart time.Time
	// ticks completed since missedTicksStart
	ticksForMissed int
	spt            ExtremaAccumulator
	tps            ExtremaAccumulator
	// ticks in the current TPS window
	ticks    int
	tpsStart time.Time
}

// NewHealthMonitor creates a monitor whose first gauge read probes the host.
func NewHealthMonitor(cfg HealthConfig, probe Probe, transport TransportCounters, log *zap.Logger) (*HealthMonitor, error) {
	if cfg.TickPeriod <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidTickPeriod, cfg.TickPeriod)
	}
	if probe == nil {
		return nil, errors.New("health monitor requires a probe")
	}
	if transport == nil {
		transport = NewFixedTransport()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	now := cfg.Now()
	return &HealthMonitor{
		tickPeriod:       cfg.TickPeriod.Seconds(),
		probe:            probe,
		probeTimeout:     cfg.ProbeTimeout,
		transport:        transport,
		log:              log.With(logger.Scope("health.monitor")),
		now:              cfg.Now,
		lastRefresh:      now.Add(-2 * GaugeCacheInterval),
		missedTicksStart: now,
		tpsStart:         now,
	}, nil
}

// TickPeriod returns the nominal tick period the monitor measures against.
func (m *HealthMonitor) TickPeriod() time.Duration {
	return time.Duration(m.tickPeriod * float64(time.Second))
}

// CPU returns the (possibly cached) CPU usage from 0 to 1.
func (m *HealthMonitor) CPU() float64 {
	m.refreshIfNecessary()
	m.gaugeMu.Lock()
	defer m.gaugeMu.Unlock()
	return m.cpu
}

// CPUSteal returns the (possibly cached) CPU steal from 0 to 1.
func (m *HealthMonitor) CPUSteal() float64 {
	m.refreshIfNecessary()
	m.gaugeMu.Lock()
	defer m.gaugeMu.Unlock()
	return m.cpuSteal
}

// RAM returns the (possibly cached) RAM usage from 0 to 1.
func (m *HealthMonitor) RAM() float64 {
	m.refreshIfNecessary()
	m.gaugeMu.Lock()
	defer m.gaugeMu.Unlock()
	return m.ram
}

// Swap returns the (possibly cached) swap usage from 0 to 1.
func (m *HealthMonitor) Swap() float64 {
	m.refreshIfNecessary()
	m.gaugeMu.Lock()
	defer m.gaugeMu.Unlock()
	return m.swap
}

// MissedTicks returns the tick miss rate of the last closed window, 0 to 1.
func (m *HealthMonitor) MissedTicks() float64 {
	m.refreshIfNecessary()
	m.tickMu.RLock()
	defer m.tickMu.RUnlock()
	return m.missedTicks
}

// BandwidthRx returns bytes/second received by the transport layer.
func (m *HealthMonitor) BandwidthRx() uint64 {
	return m.transport.BandwidthRx()
}

// BandwidthTx returns bytes/second transmitted by the transport layer.
func (m *HealthMonitor) BandwidthTx() uint64 {
	return m.transport.BandwidthTx()
}

// Connections returns the transport layer's open connection count.
func (m *HealthMonitor) Connections() int {
	return m.transport.Connections()
}

// TakeTPS drains the ticks-per-second samples.
func (m *HealthMonitor) TakeTPS() models.ExtremaSummary {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	return m.tps.Take()
}

// TakeSPT drains the seconds-per-tick samples.
func (m *HealthMonitor) TakeSPT() models.ExtremaSummary {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	return m.spt.Take()
}

// Snapshot reads every gauge and counter at once.
func (m *HealthMonitor) Snapshot() models.HealthSnapshot {
	m.refreshIfNecessary()

	m.gaugeMu.Lock()
	snap := models.HealthSnapshot{
		CPU:      m.cpu,
		CPUSteal: m.cpuSteal,
		RAM:      m.ram,
		Swap:     m.swap,
	}
	m.gaugeMu.Unlock()

	m.tickMu.RLock()
	snap.MissedTicks = m.missedTicks
	m.tickMu.RUnlock()

	snap.BandwidthRx = m.transport.BandwidthRx()
	snap.BandwidthTx = m.transport.BandwidthTx()
	snap.Connections = m.transport.Connections()
	snap.Timestamp = m.now()
	return snap
}

// RecordTick is called by the host loop once per completed tick with the
// tick's timestamp and its wall-clock duration in seconds.
func (m *HealthMonitor) RecordTick(now time.Time, elapsed float64) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	m.ticksForMissed++
	m.spt.Push(clamp(elapsed, 0, MaxTickSeconds))

	tpsElapsed := now.Sub(m.tpsStart)
	tolerance := time.Duration((1 - m.tickPeriod*0.5) * float64(time.Second))
	if tpsElapsed >= tolerance {
		if tpsElapsed >= time.Second {
			m.ticks++
			m.tps.Push(float64(m.ticks))
			m.ticks = 0
		} else {
			// Closed a little early: this tick opens the next window.
			m.tps.Push(float64(m.ticks))
			m.ticks = 1
		}
		m.tpsStart = now
	} else {
		m.ticks++
	}

	missedElapsed := now.Sub(m.missedTicksStart)
	if missedElapsed > MissedTicksWindow {
		scheduled := missedElapsed.Seconds() / m.tickPeriod
		missed := math.Max(scheduled-float64(m.ticksForMissed), 0) / scheduled
		m.missedTicks = clamp(missed, 0, 1)
		m.ticksForMissed = 0
		m.missedTicksStart = now
	}
}

func (m *HealthMonitor) refreshIfNecessary() {
	m.gaugeMu.Lock()
	now := m.now()
	if now.Sub(m.lastRefresh) <= GaugeCacheInterval {
		m.gaugeMu.Unlock()
		return
	}
	// Claim this refresh; concurrent readers keep getting cached values.
	m.lastRefresh = now
	m.gaugeMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.probeTimeout)
	defer cancel()

	if err := m.probe.Update(ctx); err != nil {
		m.log.Warn("error updating health", zap.Error(err))
	}

	m.gaugeMu.Lock()
	defer m.gaugeMu.Unlock()
	if v, ok := m.probe.CPUUsage(); ok {
		m.cpu = clamp(v, 0, 1)
	}
	if v, ok := m.probe.CPUStealUsage(); ok {
		m.cpuSteal = clamp(v, 0, 1)
	}
	if v, ok := m.probe.RAMUsage(); ok {
		m.ram = clamp(v, 0, 1)
	}
	if v, ok := m.probe.SwapUsage(); ok {
		m.swap = clamp(v, 0, 1)
	}
}

// clamp bounds v to [lo, hi], mapping NaN to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
