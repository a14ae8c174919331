package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/platformbuilds/fleetwatch-core/internal/models"
	"github.com/platformbuilds/fleetwatch-core/internal/monitoring"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// dashboards connect cross-origin; transport auth is out of scope here
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans alert transitions out to connected websocket clients. It
// implements alerts.Notifier.
type Hub struct {
	clients    map[*streamClient]bool
	register   chan *streamClient
	unregister chan *streamClient
	broadcast  chan []byte
	logger     logger.Logger
	mu         sync.RWMutex
}

type streamClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

type streamMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*streamClient]bool),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		broadcast:  make(chan []byte, 64),
		logger:     log,
	}
}

// Run owns the client set. Blocking; callers start it in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			monitoring.SetStreamClients(n)
			h.logger.Info("alert-stream client connected", "clients", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			monitoring.SetStreamClients(n)
			h.logger.Info("alert-stream client disconnected", "clients", n)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow client, drop it
					delete(h.clients, client)
					close(client.send)
				}
			}
			monitoring.SetStreamClients(len(h.clients))
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[*streamClient]bool)
			h.mu.Unlock()
			monitoring.SetStreamClients(0)
			return
		}
	}
}

// NotifyAlertTransition broadcasts one lifecycle transition to every client.
// Non-blocking: if the hub is saturated the transition is dropped from the
// stream, never from the store.
func (h *Hub) NotifyAlertTransition(t models.AlertTransition) {
	message, err := json.Marshal(streamMessage{
		Type:      "alert_transition",
		Data:      t,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.logger.Error("failed to marshal alert transition", "error", err)
		return
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("alert stream saturated; dropping transition",
			"device_id", t.DeviceID, "action", t.Action)
	}
}

// ServeWS upgrades a request into a stream client.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &streamClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientSendSize),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection; the stream is one-way, reads exist only to
// notice disconnects and answer pings.
func (c *streamClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
