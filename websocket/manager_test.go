package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Manager, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := NewManager(zerolog.Nop(), []string{"*"})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = m.Start(ctx) }()

	r := gin.New()
	r.GET("/ws", m.Handler())
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return m, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var welcome Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, "connected", welcome.Type)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	var ev Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestManager_BroadcastsToAllClients(t *testing.T) {
	m, url := newTestServer(t)

	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return m.ConnectedClients() == 2 }, 2*time.Second, 10*time.Millisecond)

	m.Notify("message_received", "555", map[string]string{"text": "hi"})

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		assert.Equal(t, "message_received", ev.Type)
		assert.Equal(t, "555", ev.Peer)
		assert.Equal(t, map[string]any{"text": "hi"}, ev.Payload)
	}
}

func TestManager_PeerFilter(t *testing.T) {
	m, url := newTestServer(t)

	only555 := dial(t, url+"?peer=555")
	all := dial(t, url)
	require.Eventually(t, func() bool { return m.ConnectedClients() == 2 }, 2*time.Second, 10*time.Millisecond)

	m.Notify("message_received", "777", nil)
	m.Notify("status_updated", "555", nil)

	assert.Equal(t, "777", readEvent(t, all).Peer)
	assert.Equal(t, "555", readEvent(t, all).Peer)

	ev := readEvent(t, only555)
	assert.Equal(t, "status_updated", ev.Type)
	assert.Equal(t, "555", ev.Peer)
}

func TestManager_PingPong(t *testing.T) {
	m, url := newTestServer(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return m.ConnectedClients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", readEvent(t, conn).Type)
}

func TestManager_UnregistersOnClose(t *testing.T) {
	m, url := newTestServer(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return m.ConnectedClients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool { return m.ConnectedClients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestManager_NotifyNeverBlocks(t *testing.T) {
	// not started: nothing drains the queue
	m := NewManager(zerolog.Nop(), nil)

	done := make(chan struct{})
	go func() {
		for range cap(m.broadcast) + 10 {
			m.Notify("message_sent", "555", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked")
	}
}

func TestManager_RejectsForeignOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager(zerolog.Nop(), []string{"https://dashboard.example"})
	r := gin.New()
	r.GET("/ws", m.Handler())
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := map[string][]string{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
}
