package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickwatch/internal/models"
)

type staticSnapshot struct{ snap models.HealthSnapshot }

func (s staticSnapshot) Snapshot() models.HealthSnapshot { return s.snap }

func startHub(t *testing.T, interval time.Duration) (*WebSocketHub, *TrafficMeter) {
	t.Helper()
	meter := NewTrafficMeter(time.Now())
	hub := NewWebSocketHub(staticSnapshot{models.HealthSnapshot{CPU: 0.5, Connections: 3}}, meter, interval, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub, meter
}

func TestWebSocketHub_RegisterCountsConnections(t *testing.T) {
	hub, meter := startHub(t, time.Hour)

	require.True(t, hub.Register(NewClientConnection("a", nil)))
	require.True(t, hub.Register(NewClientConnection("b", nil)))
	assert.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, meter.Connections())

	hub.Unregister("a")
	hub.Unregister("missing")
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, meter.Connections())
}

func TestWebSocketHub_UnregisterClosesSendQueue(t *testing.T) {
	hub, _ := startHub(t, time.Hour)
	client := NewClientConnection("a", nil)
	require.True(t, hub.Register(client))
	hub.Unregister("a")

	select {
	case _, ok := <-client.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send queue not closed")
	}
}

func TestWebSocketHub_BroadcastsHealth(t *testing.T) {
	hub, _ := startHub(t, 10*time.Millisecond)
	client := NewClientConnection("a", nil)
	require.True(t, hub.Register(client))

	select {
	case msg := <-client.Send:
		assert.Equal(t, "health", msg.Type)
		snap, ok := msg.Data.(models.HealthSnapshot)
		require.True(t, ok)
		assert.Equal(t, 0.5, snap.CPU)
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestWebSocketHub_SendMessage(t *testing.T) {
	hub, _ := startHub(t, time.Hour)
	assert.False(t, hub.SendMessage("a", WebSocketMessage{Type: "pong"}))

	client := NewClientConnection("a", nil)
	require.True(t, hub.Register(client))
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, time.Millisecond)

	assert.True(t, hub.SendMessage("a", WebSocketMessage{Type: "pong"}))
	assert.Equal(t, "pong", (<-client.Send).Type)
}

func TestWebSocketHub_StopReleasesClients(t *testing.T) {
	meter := NewTrafficMeter(time.Now())
	hub := NewWebSocketHub(nil, meter, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := NewClientConnection("a", nil)
	require.True(t, hub.Register(client))
	cancel()
	<-stopped

	_, ok := <-client.Send
	assert.False(t, ok)
	assert.Equal(t, 0, meter.Connections())
	assert.False(t, hub.Register(NewClientConnection("b", nil)))
}
