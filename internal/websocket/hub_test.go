package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/config"
	"github.com/wfunc/pinball-game/internal/event"
)

func setupWSServer(t *testing.T) (*httptest.Server, *Hub, *event.Bus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := event.NewBus(zap.NewNop())
	hub := NewHub(bus, zap.NewNop())
	go hub.Run()

	handler := NewHandler(hub, &config.WebSocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}, zap.NewNop())

	r := gin.New()
	r.GET("/ws/monitor", handler.Handle)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub, bus
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/monitor"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	// WritePump可能把多条消息合并成一帧
	first := strings.SplitN(string(data), "\n", 2)[0]
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(first), &msg))
	return &msg
}

func TestHub_ClientReceivesWelcome(t *testing.T) {
	srv, hub, _ := setupWSServer(t)
	conn := dialWS(t, srv)

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeConnected, msg.Type)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastsMachineEvents(t *testing.T) {
	srv, _, bus := setupWSServer(t)
	conn := dialWS(t, srv)

	// 跳过欢迎消息
	readMessage(t, conn)

	bus.Post("sling_hit", map[string]interface{}{"device": "af_sling"})

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeEvent, msg.Type)
	assert.Equal(t, "sling_hit", msg.Event)
	assert.NotZero(t, msg.Timestamp)
}

func TestHub_ClientDisconnect(t *testing.T) {
	srv, hub, _ := setupWSServer(t)
	conn := dialWS(t, srv)

	readMessage(t, conn)
	require.Equal(t, 1, hub.ClientCount())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}
