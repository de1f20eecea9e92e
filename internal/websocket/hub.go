package websocket

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Hub fans pipeline output (fired alerts, rule matches, stats) out to
// connected dashboard clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client

	logger *logrus.Logger

	mu    sync.RWMutex
	stats *HubStats

	done chan struct{}
}

type envelope struct {
	topic string
	data  []byte
}

// HubStats tracks connection and traffic counters.
type HubStats struct {
	ConnectedClients int       `json:"connected_clients"`
	TotalConnections int64     `json:"total_connections"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesReceived int64     `json:"messages_received"`
	LastActivity     time.Time `json:"last_activity"`
}

// NewHub creates a hub. Call Run in its own goroutine.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		stats:      &HubStats{LastActivity: time.Now()},
		done:       make(chan struct{}),
	}
}

// Run handles registration and broadcasting until Close is called.
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case env := <-h.broadcast:
			h.broadcastEnvelope(env)

		case <-heartbeat.C:
			h.sendHeartbeat()

		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Close shuts the hub down and disconnects every client.
func (h *Hub) Close() {
	close(h.done)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.ConnectedClients = len(h.clients)
	h.stats.LastActivity = time.Now()
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"client_id":         client.ID,
		"connected_clients": count,
	}).Info("WebSocket client connected")

	welcome := NewMessage("connection", "", map[string]interface{}{
		"status":    "connected",
		"client_id": client.ID,
		"topics":    []string{TopicAlerts, TopicMatches, TopicStats},
	})
	client.send <- welcome.ToJSON()
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closeSend()
		h.stats.ConnectedClients = len(h.clients)
		h.stats.LastActivity = time.Now()

		h.logger.WithFields(logrus.Fields{
			"client_id":         client.ID,
			"connected_clients": len(h.clients),
		}).Info("WebSocket client disconnected")
	}
}

func (h *Hub) broadcastEnvelope(env envelope) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.wantsTopic(env.topic) {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	h.mu.Lock()
	h.stats.MessagesSent++
	h.stats.LastActivity = time.Now()
	h.mu.Unlock()

	for _, client := range clients {
		select {
		case client.send <- env.data:
		default:
			// Slow consumer: drop the connection rather than block
			// the pipeline.
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) sendHeartbeat() {
	h.Broadcast(NewMessage("heartbeat", "", map[string]interface{}{
		"clients": h.GetClientCount(),
	}))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		client.closeSend()
	}
	h.stats.ConnectedClients = 0
}

// Broadcast queues a message for every subscribed client. Messages are
// dropped when the hub is saturated; the feed is best-effort.
func (h *Hub) Broadcast(message Message) {
	select {
	case h.broadcast <- envelope{topic: message.Topic, data: message.ToJSON()}:
	default:
		h.logger.Warn("Broadcast channel full, message dropped")
	}
}

// GetStats returns a copy of the hub counters.
func (h *Hub) GetStats() *HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	statsCopy := *h.stats
	statsCopy.ConnectedClients = len(h.clients)
	return &statsCopy
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
