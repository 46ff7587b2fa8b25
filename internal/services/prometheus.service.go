package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tickwatch/internal/models"
)

var (
	// Host gauges
	CPURatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickwatch_cpu_ratio",
		Help: "Host CPU usage (0-1)",
	})

	CPUStealRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickwatch_cpu_steal_ratio",
		Help: "Host CPU steal time (0-1)",
	})

	RAMRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickwatch_ram_ratio",
		Help: "Host RAM usage (0-1)",
	})

	SwapRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickwatch_swap_ratio",
		Help: "Host swap usage (0-1)",
	})

	// Tick cadence
	MissedTicksRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickwatch_missed_ticks_ratio",
		Help: "Fraction of scheduled ticks not run in the last window (0-1)",
	})

	TicksPerSecond = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tickwatch_ticks_per_second",
		Help: "Ticks completed per second over the last export interval",
	}, []string{"stat"})

	SecondsPerTick = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tickwatch_seconds_per_tick",
		Help: "Wall-clock seconds per tick over the last export interval",
	}, []string{"stat"})

	// Transport
	BandwidthBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tickwatch_bandwidth_bytes_per_second",
		Help: "Transport bandwidth in bytes per second",
	}, []string{"direction"})

	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickwatch_connections",
		Help: "Open transport connections",
	})

	SinkFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickwatch_history_sink_failures_total",
		Help: "Cadence points the history sink failed to store",
	})
)

// publishCadence updates every gauge from one exported point. Empty
// summaries leave the previous TPS/SPT values in place.
func publishCadence(p models.CadencePoint) {
	h := p.Health
	CPURatio.Set(h.CPU)
	CPUStealRatio.Set(h.CPUSteal)
	RAMRatio.Set(h.RAM)
	SwapRatio.Set(h.Swap)
	MissedTicksRatio.Set(h.MissedTicks)
	BandwidthBytes.WithLabelValues("rx").Set(float64(h.BandwidthRx))
	BandwidthBytes.WithLabelValues("tx").Set(float64(h.BandwidthTx))
	OpenConnections.Set(float64(h.Connections))

	setSummary(TicksPerSecond, p.TPS)
	setSummary(SecondsPerTick, p.SPT)
}

func setSummary(vec *prometheus.GaugeVec, s models.ExtremaSummary) {
	if s.Count == 0 {
		return
	}
	vec.WithLabelValues("min").Set(s.Min)
	vec.WithLabelValues("max").Set(s.Max)
	vec.WithLabelValues("mean").Set(s.Mean)
}
