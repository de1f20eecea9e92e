package websocket

import (
	"encoding/json"
	"time"
)

// Topics clients can subscribe to. A client with no subscriptions
// receives everything.
const (
	TopicAlerts  = "alerts"
	TopicMatches = "matches"
	TopicStats   = "stats"
)

// Message is the wire format for the dashboard feed.
type Message struct {
	Type      string                 `json:"type"`
	Topic     string                 `json:"topic,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewMessage builds a message stamped with the current time.
func NewMessage(msgType, topic string, data map[string]interface{}) Message {
	return Message{
		Type:      msgType,
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// ToJSON serializes the message, falling back to an error payload that
// is always marshalable.
func (m Message) ToJSON() []byte {
	data, err := json.Marshal(m)
	if err != nil {
		fallback, _ := json.Marshal(Message{
			Type:      "error",
			Timestamp: time.Now().UTC(),
			Data:      map[string]interface{}{"error": err.Error()},
		})
		return fallback
	}
	return data
}
