package models

import "time"

// HealthSnapshot combines cached resource gauges, the missed-tick ratio and
// transport counters at a point in time. Fractions are in [0, 1].
type HealthSnapshot struct {
	CPU         float64   `json:"cpu"`
	CPUSteal    float64   `json:"cpu_steal"`
	RAM         float64   `json:"ram"`
	Swap        float64   `json:"swap"`
	MissedTicks float64   `json:"missed_ticks"`
	BandwidthRx uint64    `json:"bandwidth_rx"` // bytes/sec
	BandwidthTx uint64    `json:"bandwidth_tx"` // bytes/sec
	Connections int       `json:"connections"`
	Timestamp   time.Time `json:"timestamp"`
}
