package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one dashboard connection. Clients subscribe to topics;
// an empty subscription set means everything.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte

	hub    *Hub
	logger *logrus.Logger

	ConnectedAt time.Time `json:"connected_at"`
	RemoteAddr  string    `json:"remote_addr"`

	topicsMu sync.RWMutex
	topics   map[string]bool

	sendMu     sync.Mutex
	sendClosed bool
}

// trySend queues a frame unless the hub has already closed this
// client's channel. The read pump replies to pings concurrently with
// hub eviction, so the raw channel send is not safe there.
func (c *Client) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// HandleWebSocket upgrades the request and attaches the client to the hub.
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		conn:        conn,
		send:        make(chan []byte, 256),
		hub:         hub,
		logger:      hub.logger,
		ConnectedAt: time.Now(),
		RemoteAddr:  r.RemoteAddr,
		topics:      make(map[string]bool),
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// HandleWebSocketGin adapts HandleWebSocket for the gin router.
func HandleWebSocketGin(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		HandleWebSocket(hub, c.Writer, c.Request)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		c.handleMessage(raw)

		c.hub.mu.Lock()
		c.hub.stats.MessagesReceived++
		c.hub.mu.Unlock()
	}
}

func (c *Client) writePump() {
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Coalesce anything already queued.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

func (c *Client) handleMessage(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.WithError(err).Error("Failed to unmarshal WebSocket message")
		return
	}

	switch msg.Type {
	case "subscribe":
		if topic, ok := msg.Data["topic"].(string); ok {
			c.Subscribe(topic)
		}
	case "unsubscribe":
		if topic, ok := msg.Data["topic"].(string); ok {
			c.Unsubscribe(topic)
		}
	case "ping":
		pong := NewMessage("pong", "", nil)
		c.trySend(pong.ToJSON())
	default:
		c.logger.WithField("message_type", msg.Type).Warn("Unknown WebSocket message type")
	}
}

// Subscribe narrows the client's feed to the given topics.
func (c *Client) Subscribe(topic string) {
	c.topicsMu.Lock()
	c.topics[topic] = true
	c.topicsMu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"client_id": c.ID,
		"topic":     topic,
	}).Info("Client subscribed")
}

// Unsubscribe removes a topic subscription.
func (c *Client) Unsubscribe(topic string) {
	c.topicsMu.Lock()
	delete(c.topics, topic)
	c.topicsMu.Unlock()
}

func (c *Client) wantsTopic(topic string) bool {
	if topic == "" {
		return true
	}
	c.topicsMu.RLock()
	defer c.topicsMu.RUnlock()
	if len(c.topics) == 0 {
		return true
	}
	return c.topics[topic]
}
