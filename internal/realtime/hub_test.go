package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub, userID string, streams []string) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(userID, streams, nil, w, r)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForConnections(t *testing.T, hub *Hub, want int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.ActiveConnections() == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcastToUserDeliversMessage(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "rep-1", nil)
	waitForConnections(t, hub, 1)

	var queued int
	require.Eventually(t, func() bool {
		queued = hub.BroadcastToUser(StreamNotifications, "rep-1", Message{
			Event: EventNotificationCreated,
			Data:  map[string]any{"id": "n-1"},
		})
		return queued == 1
	}, 2*time.Second, 10*time.Millisecond)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, StreamNotifications, msg.Stream)
	require.Equal(t, EventNotificationCreated, msg.Event)
}

func TestHubBroadcastSkipsOtherUsers(t *testing.T) {
	hub := NewHub()
	dialHub(t, hub, "rep-1", []string{StreamNotifications})
	waitForConnections(t, hub, 1)

	require.Zero(t, hub.BroadcastToUser(StreamNotifications, "rep-2", Message{Event: EventNotificationCreated}))
	require.Zero(t, hub.BroadcastToUser("", "rep-1", Message{Event: EventNotificationCreated}))
}

func TestHubUnregistersClosedConnections(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "rep-1", nil)
	waitForConnections(t, hub, 1)

	require.NoError(t, conn.Close())
	waitForConnections(t, hub, 0)
	require.Zero(t, hub.BroadcastToUser(StreamNotifications, "rep-1", Message{Event: EventNotificationCreated}))
}

func TestHubPingControlMessage(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "rep-1", nil)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "ping"}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "pong", msg.Event)
}

func TestUniqueStreamsNormalizes(t *testing.T) {
	require.Equal(t, []string{"notifications", "deliveries"}, uniqueStreams([]string{" Notifications", "deliveries", "NOTIFICATIONS", ""}))
}

func TestHubCheckOrigin(t *testing.T) {
	request := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://alerts.example.com:8000/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	hub := NewHub(WithAllowedOrigins("https://crm.example.com"))
	require.True(t, hub.checkOrigin(request("")))
	require.True(t, hub.checkOrigin(request("https://alerts.example.com")))
	require.True(t, hub.checkOrigin(request("http://localhost:5173")))
	require.True(t, hub.checkOrigin(request("https://CRM.example.com")))
	require.False(t, hub.checkOrigin(request("https://evil.example.net")))

	open := NewHub(WithAllowedOrigins("*"))
	require.True(t, open.checkOrigin(request("https://evil.example.net")))
}

func TestHubSendBufferOption(t *testing.T) {
	require.Equal(t, 8, NewHub(WithSendBuffer(8)).bufferSize)
	require.Equal(t, defaultBufferSize, NewHub(WithSendBuffer(0)).bufferSize)
}
