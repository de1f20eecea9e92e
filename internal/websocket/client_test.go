package websocket

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Client{
		ID:     "test",
		send:   make(chan []byte, 1),
		logger: log,
		topics: make(map[string]bool),
	}
}

func TestClient_TrySendAfterClose(t *testing.T) {
	c := testClient()

	assert.True(t, c.trySend([]byte("first")))

	// Buffer full: drop instead of blocking the read pump.
	assert.False(t, c.trySend([]byte("second")))

	c.closeSend()

	// A ping reply racing hub eviction must not panic on the closed
	// channel.
	require.NotPanics(t, func() {
		assert.False(t, c.trySend([]byte("after close")))
	})
	require.NotPanics(t, c.closeSend)
}

func TestClient_TopicFiltering(t *testing.T) {
	c := testClient()

	// No subscriptions means everything.
	assert.True(t, c.wantsTopic(TopicAlerts))
	assert.True(t, c.wantsTopic(""))

	c.Subscribe(TopicAlerts)
	assert.True(t, c.wantsTopic(TopicAlerts))
	assert.False(t, c.wantsTopic(TopicMatches))

	// Untopiced messages (heartbeat, pong) always pass.
	assert.True(t, c.wantsTopic(""))

	c.Unsubscribe(TopicAlerts)
	assert.True(t, c.wantsTopic(TopicMatches))
}
