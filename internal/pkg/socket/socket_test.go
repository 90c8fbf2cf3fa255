package socket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/sentry"
)

func dial(t *testing.T, h *Hub) *websocket.Conn {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func Test_PublishStatus(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	conn := dial(t, h)
	require.Eventually(t, func() bool { return h.Connections() == 1 }, time.Second, 10*time.Millisecond)

	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	err := h.PublishStatus(context.Background(), sentry.Vehicle{VIN: "VIN1", DisplayName: "Red Car"}, sentry.Status{
		Online:        true,
		SentryEnabled: true,
		Triggered:     true,
		Timestamp:     at,
	})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, StatusChannel, msg.Channel)
	assert.JSONEq(t, `{"vin":"VIN1","name":"Red Car","online":true,"sentry_enabled":true,"triggered":true,"timestamp":"2024-06-01T10:00:00Z"}`, string(msg.Message))
}

func Test_DisconnectedClientRemoved(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	conn := dial(t, h)
	require.Eventually(t, func() bool { return h.Connections() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return h.Connections() == 0 }, time.Second, 10*time.Millisecond)

	err := h.PublishStatus(context.Background(), sentry.Vehicle{VIN: "VIN1"}, sentry.Status{})
	assert.NoError(t, err)
}

func Test_Close(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	conn := dial(t, h)
	require.Eventually(t, func() bool { return h.Connections() == 1 }, time.Second, 10*time.Millisecond)

	h.Close()
	assert.Equal(t, 0, h.Connections())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}
