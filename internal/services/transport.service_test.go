package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrafficMeter_Roll(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewTrafficMeter(start)

	m.AddRx(1000)
	m.AddRx(1000)
	m.AddTx(500)
	assert.Equal(t, uint64(0), m.BandwidthRx(), "no rate before the first roll")

	m.Roll(start.Add(2 * time.Second))
	assert.Equal(t, uint64(1000), m.BandwidthRx())
	assert.Equal(t, uint64(250), m.BandwidthTx())

	// quiet window
	m.Roll(start.Add(3 * time.Second))
	assert.Equal(t, uint64(0), m.BandwidthRx())
	assert.Equal(t, uint64(0), m.BandwidthTx())
}

func TestTrafficMeter_IgnoresTinyWindows(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewTrafficMeter(start)

	m.AddTx(100)
	m.Roll(start)
	assert.Equal(t, uint64(0), m.BandwidthTx())

	m.Roll(start.Add(time.Second))
	assert.Equal(t, uint64(100), m.BandwidthTx())
}

func TestTrafficMeter_Connections(t *testing.T) {
	m := NewTrafficMeter(time.Now())
	m.Opened()
	m.Opened()
	m.Closed()
	assert.Equal(t, 1, m.Connections())

	m.Closed()
	m.Closed()
	assert.Equal(t, 0, m.Connections())

	m.AddRx(-5)
	m.AddTx(0)
	m.Roll(time.Now().Add(time.Second))
	assert.Equal(t, uint64(0), m.BandwidthRx())
}

func TestFixedTransport(t *testing.T) {
	tr := NewFixedTransport()
	assert.Equal(t, uint64(100_000_000), tr.BandwidthRx())
	assert.Equal(t, uint64(50_000_000), tr.BandwidthTx())
	assert.Equal(t, 100, tr.Connections())
}
