package services

import (
	"sync"
	"sync/atomic"
	"time"
)

// TransportCounters are cheap counters owned by the transport layer.
type TransportCounters interface {
	BandwidthRx() uint64 // bytes/sec
	BandwidthTx() uint64 // bytes/sec
	Connections() int
}

// TrafficMeter counts bytes moved by the websocket hub and the HTTP server
// and turns them into per-second rates each time Roll is called.
type TrafficMeter struct {
	rxBytes atomic.Uint64
	txBytes atomic.Uint64
	rxRate  atomic.Uint64
	txRate  atomic.Uint64
	conns   atomic.Int64

	mu       sync.Mutex
	lastRoll time.Time
}

// NewTrafficMeter starts the first rate window at now.
func NewTrafficMeter(now time.Time) *TrafficMeter {
	return &TrafficMeter{lastRoll: now}
}

func (m *TrafficMeter) AddRx(n int) {
	if n > 0 {
		m.rxBytes.Add(uint64(n))
	}
}

func (m *TrafficMeter) AddTx(n int) {
	if n > 0 {
		m.txBytes.Add(uint64(n))
	}
}

func (m *TrafficMeter) Opened() { m.conns.Add(1) }

func (m *TrafficMeter) Closed() {
	// Never go negative on a double close
	for {
		cur := m.conns.Load()
		if cur <= 0 || m.conns.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// Roll closes the current window and publishes its rates. Windows shorter
// than a millisecond are ignored so the rates never blow up.
func (m *TrafficMeter) Roll(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := now.Sub(m.lastRoll).Seconds()
	if elapsed < 0.001 {
		return
	}
	rx := m.rxBytes.Swap(0)
	tx := m.txBytes.Swap(0)
	m.rxRate.Store(uint64(float64(rx) / elapsed))
	m.txRate.Store(uint64(float64(tx) / elapsed))
	m.lastRoll = now
}

func (m *TrafficMeter) BandwidthRx() uint64 { return m.rxRate.Load() }
func (m *TrafficMeter) BandwidthTx() uint64 { return m.txRate.Load() }
func (m *TrafficMeter) Connections() int { return int(m.conns.Load()) }

// FixedTransport reports constant counters for development mode.
type FixedTransport struct {
	Rx    uint64
	Tx    uint64
	Conns int
}

// NewFixedTransport returns 100 MB/s in, 50 MB/s out and 100 connections.
func NewFixedTransport() *FixedTransport {
	return &FixedTransport{Rx: 100_000_000, Tx: 50_000_000, Conns: 100}
}

func (t *FixedTransport) BandwidthRx() uint64 { return t.Rx }
func (t *FixedTransport) BandwidthTx() uint64 { return t.Tx }
func (t *FixedTransport) Connections() int { return t.Conns }
