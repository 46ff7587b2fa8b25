package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickwatch/internal/middleware"
	"tickwatch/internal/models"
	"tickwatch/internal/services"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func wsServer(t *testing.T) (*httptest.Server, *services.AuthService, *services.TrafficMeter) {
	t.Helper()
	auth, err := services.NewAuthService(testSecret, "", time.Hour, nil)
	require.NoError(t, err)

	meter := services.NewTrafficMeter(time.Now())
	hub := services.NewWebSocketHub(fakeHealth{models.HealthSnapshot{RAM: 0.75}}, meter, 20*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	wc := NewWebSocketController(hub, auth, middleware.NewSecurityLogger(nil), 5, nil)
	r := gin.New()
	r.GET("/ws", wc.HandleWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, auth, meter
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
}

func TestWebSocketController_RejectsMissingAndBadTokens(t *testing.T) {
	srv, auth, _ := wsServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "not.a.token"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	other, err := auth.GenerateToken(6, "x")
	require.NoError(t, err)
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, other), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketController_StreamsHealthAndAnswersPing(t *testing.T) {
	srv, auth, meter := wsServer(t)
	token, err := auth.GenerateToken(5, "test")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string                `json:"type"`
		Data models.HealthSnapshot `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "health", msg.Type)
	assert.Equal(t, 0.75, msg.Data.RAM)
	assert.Equal(t, 1, meter.Connections())

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	for msg.Type != "pong" {
		require.NoError(t, conn.ReadJSON(&msg))
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	for msg.Type != "error" {
		require.NoError(t, conn.ReadJSON(&msg))
	}

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "unsubscribe"}))
	assert.Eventually(t, func() bool { return meter.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
}
