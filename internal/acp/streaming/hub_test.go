package streaming

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/acpd/internal/common/logger"
)

func wsDial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session_id")
		_ = hub.ServeWS(w, r, sessionID)
	}))
	t.Cleanup(server.Close)
	return server
}

func waitForSubscribers(t *testing.T, hub *Hub, sessionID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.SubscriberCount(sessionID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s never reached %d subscribers", sessionID, want)
}

func TestHubBroadcastToSubscriber(t *testing.T) {
	hub := NewHub(logger.NewNop())
	defer hub.Close()
	server := newHubServer(t, hub)

	conn := wsDial(t, server, "/?session_id=s1")
	waitForSubscribers(t, hub, "s1", 1)

	hub.Broadcast("s1", "agent_message_chunk", json.RawMessage(`{"sessionUpdate":"agent_message_chunk"}`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, "s1", event.SessionID)
	assert.Equal(t, "agent_message_chunk", event.UpdateType)
	assert.JSONEq(t, `{"sessionUpdate":"agent_message_chunk"}`, string(event.Update))
	assert.NotEmpty(t, event.Timestamp)
}

func TestHubBroadcastSkipsOtherSessions(t *testing.T) {
	hub := NewHub(logger.NewNop())
	defer hub.Close()
	server := newHubServer(t, hub)

	conn := wsDial(t, server, "/?session_id=s1")
	waitForSubscribers(t, hub, "s1", 1)

	hub.Broadcast("other", "tool_call", json.RawMessage(`{}`))
	hub.Broadcast("s1", "tool_call", json.RawMessage(`{"for":"s1"}`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, "s1", event.SessionID)
}

func TestHubSubscribeOverSocket(t *testing.T) {
	hub := NewHub(logger.NewNop())
	defer hub.Close()
	server := newHubServer(t, hub)

	conn := wsDial(t, server, "/")
	require.NoError(t, conn.WriteJSON(SubscriptionMessage{Action: "subscribe", SessionIDs: []string{"s9"}}))
	waitForSubscribers(t, hub, "s9", 1)

	require.NoError(t, conn.WriteJSON(SubscriptionMessage{Action: "unsubscribe", SessionIDs: []string{"s9"}}))
	waitForSubscribers(t, hub, "s9", 0)
}

func TestHubUnregisterOnDisconnect(t *testing.T) {
	hub := NewHub(logger.NewNop())
	defer hub.Close()
	server := newHubServer(t, hub)

	conn := wsDial(t, server, "/?session_id=s1")
	waitForSubscribers(t, hub, "s1", 1)

	conn.Close()
	waitForSubscribers(t, hub, "s1", 0)
}
