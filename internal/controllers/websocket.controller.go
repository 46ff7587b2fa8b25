package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tickwatch/internal/logger"
	"tickwatch/internal/middleware"
	"tickwatch/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMsgSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Clients are authenticated by token, not origin
		return true
	},
}

// TokenValidator checks client tokens.
type TokenValidator interface {
	ValidateToken(token string) (*services.CustomClaims, error)
}

type WebSocketController struct {
	hub      *services.WebSocketHub
	auth     TokenValidator
	sec      *middleware.SecurityLogger
	serverID int
	log      *zap.Logger
	seq      atomic.Uint64
}

func NewWebSocketController(hub *services.WebSocketHub, auth TokenValidator, sec *middleware.SecurityLogger, serverID int, log *zap.Logger) *WebSocketController {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocketController{
		hub:      hub,
		auth:     auth,
		sec:      sec,
		serverID: serverID,
		log:      log.With(logger.Scope("ws")),
	}
}

// HandleWebSocket authenticates the ?token= query parameter and upgrades
// the connection to a health stream.
func (wc *WebSocketController) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		wc.sec.LogFailedAuth(c.ClientIP(), "missing token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := wc.auth.ValidateToken(token)
	if err != nil {
		wc.sec.LogFailedAuth(c.ClientIP(), "invalid token: "+err.Error())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if claims.ServerID != wc.serverID {
		wc.sec.LogFailedAuth(c.ClientIP(), fmt.Sprintf("token for server %d", claims.ServerID))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token issued for another server"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wc.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	wc.sec.LogWebSocketConnected(c.ClientIP(), claims.ServerID, claims.Client)

	clientID := fmt.Sprintf("%s-%s-%d", c.ClientIP(), claims.Client, wc.seq.Add(1))
	client := services.NewClientConnection(clientID, ws)
	if !wc.hub.Register(client) {
		ws.Close()
		return
	}

	go wc.readPump(client, c.ClientIP())
	go wc.writePump(client)
}

// readPump reads messages from the WebSocket client
func (wc *WebSocketController) readPump(client *services.ClientConnection, ip string) {
	defer func() {
		wc.hub.Unregister(client.ID)
		client.Conn.Close()
		wc.sec.LogWebSocketDisconnected(ip, client.ID)
	}()

	client.Conn.SetReadLimit(maxMsgSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msg, err := wc.hub.ReadMessage(client)
		if errors.Is(err, services.ErrMalformedMessage) {
			wc.hub.SendMessage(client.ID, services.WebSocketMessage{
				Type:      "error",
				Timestamp: time.Now(),
				Error:     err.Error(),
			})
			continue
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wc.log.Warn("read error", zap.String("client", client.ID), zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "ping":
			wc.hub.SendMessage(client.ID, services.WebSocketMessage{Type: "pong", Timestamp: time.Now()})

		case "subscribe":
			// Every client already receives health broadcasts
			wc.log.Debug("client subscribed", zap.String("client", client.ID))

		case "unsubscribe":
			return

		default:
			wc.log.Debug("unknown message type", zap.String("client", client.ID), zap.String("type", msg.Type))
		}
	}
}

// writePump writes messages to the WebSocket client
func (wc *WebSocketController) writePump(client *services.ClientConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := wc.hub.WriteMessage(client, msg); err != nil {
				wc.log.Debug("write error", zap.String("client", client.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
