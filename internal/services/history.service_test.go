package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickwatch/internal/models"
)

type memorySink struct {
	mu     sync.Mutex
	points []models.CadencePoint
	err    error
}

func (s *memorySink) Store(_ context.Context, p models.CadencePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.points = append(s.points, p)
	return nil
}

// Recent returns newest first, like the Redis list.
func (s *memorySink) Recent(_ context.Context, n int64) ([]models.CadencePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CadencePoint
	for i := len(s.points) - 1; i >= 0 && int64(len(out)) < n; i-- {
		out = append(out, s.points[i])
	}
	return out, nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

func tickedMonitor(t *testing.T) (*HealthMonitor, time.Time) {
	t.Helper()
	m, clock := newTestMonitor(t, 100*time.Millisecond, NewFixedProbe())
	start := clock.Now()
	for i := 1; i <= 20; i++ {
		m.RecordTick(start.Add(time.Duration(i)*100*time.Millisecond), 0.1)
	}
	return m, start
}

func TestCadenceCollector_CollectDrainsMonitor(t *testing.T) {
	m, _ := tickedMonitor(t)
	sink := &memorySink{}
	c := NewCadenceCollector(m, sink, 7, time.Minute, 10, nil)

	p := c.collect()
	assert.Equal(t, 7, p.ServerID)
	assert.Equal(t, 2, p.TPS.Count)
	assert.Equal(t, 10.0, p.TPS.Mean)
	assert.Equal(t, 20, p.SPT.Count)
	assert.Equal(t, 0.15, p.Health.CPU)

	// drained
	p = c.collect()
	assert.Equal(t, 0, p.TPS.Count)
	assert.Equal(t, 0, p.SPT.Count)

	assert.Equal(t, 2, sink.count())
	require.NotNil(t, c.Latest())
	assert.Equal(t, 0, c.Latest().SPT.Count)
}

func TestCadenceCollector_TrimsToCapacity(t *testing.T) {
	m, _ := tickedMonitor(t)
	c := NewCadenceCollector(m, nil, 0, time.Minute, 3, nil)

	for i := 0; i < 5; i++ {
		c.collect()
	}
	assert.Len(t, c.GetHistory(time.Hour), 3)
}

func TestCadenceCollector_GetHistoryFiltersByAge(t *testing.T) {
	m, _ := tickedMonitor(t)
	c := NewCadenceCollector(m, nil, 0, time.Minute, 10, nil)
	clock := newFakeClock()
	c.now = clock.Now

	c.collect()
	clock.Advance(10 * time.Minute)
	c.collect()
	clock.Advance(time.Minute)

	assert.Len(t, c.GetHistory(5*time.Minute), 1)
	assert.Len(t, c.GetHistory(time.Hour), 2)
	assert.Empty(t, c.GetHistory(0))
}

func TestCadenceCollector_LatestBeforeFirstExport(t *testing.T) {
	m, _ := tickedMonitor(t)
	c := NewCadenceCollector(m, nil, 0, time.Minute, 10, nil)
	assert.Nil(t, c.Latest())
	assert.Empty(t, c.GetHistory(time.Hour))
}

func TestCadenceCollector_SinkFailuresAreNotFatal(t *testing.T) {
	m, _ := tickedMonitor(t)
	sink := &memorySink{err: errors.New("connection refused")}
	c := NewCadenceCollector(m, sink, 0, time.Minute, 10, nil)

	for i := 0; i < 3; i++ {
		c.collect()
	}
	assert.Len(t, c.GetHistory(time.Hour), 3)
	assert.Equal(t, 3, c.consecFailures)

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	c.collect()
	assert.Equal(t, 0, c.consecFailures)
}

func TestCadenceCollector_Restore(t *testing.T) {
	m, _ := tickedMonitor(t)
	sink := &memorySink{}
	base := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, sink.Store(context.Background(), models.CadencePoint{Timestamp: base.Add(time.Duration(i) * time.Second)}))
	}

	c := NewCadenceCollector(m, sink, 0, time.Minute, 3, nil)
	require.NoError(t, c.Restore(context.Background()))

	history := c.GetHistory(time.Hour)
	require.Len(t, history, 3)
	assert.True(t, history[0].Timestamp.Before(history[2].Timestamp), "oldest first")
	assert.Equal(t, base.Add(3*time.Second), history[2].Timestamp)
}

func TestCadenceCollector_StartStop(t *testing.T) {
	m, _ := tickedMonitor(t)
	sink := &memorySink{}
	c := NewCadenceCollector(m, sink, 0, 10*time.Millisecond, 10, nil)

	c.Start()
	c.Start()
	assert.Eventually(t, func() bool { return sink.count() >= 2 }, time.Second, 5*time.Millisecond)
	c.Stop()
	c.Stop()

	n := sink.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, sink.count())
}
