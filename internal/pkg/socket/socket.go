package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/sentry"
)

const (
	StatusChannel = "vehicle/status"

	maxMessageSize = 512
	writeWait      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type Message struct {
	Channel string          `json:"channel"`
	Message json.RawMessage `json:"message"`
}

type vehicleStatus struct {
	VIN           string    `json:"vin"`
	Name          string    `json:"name"`
	Online        bool      `json:"online"`
	SentryEnabled bool      `json:"sentry_enabled"`
	Triggered     bool      `json:"triggered"`
	Timestamp     time.Time `json:"timestamp"`
}

// Hub fans vehicle statuses out to every connected websocket.
type Hub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]bool
	logger *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		conns:  make(map[*websocket.Conn]bool),
		logger: logger,
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("upgrading websocket connection: %s", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()
	h.logger.Debugf("websocket client connected from %s", r.RemoteAddr)

	go h.readLoop(conn)
}

// readLoop discards client messages and unregisters the connection once the
// peer goes away.
func (h *Hub) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(conn)
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[conn] {
		delete(h.conns, conn)
		conn.Close()
	}
}

func (h *Hub) PublishStatus(ctx context.Context, v sentry.Vehicle, status sentry.Status) error {
	payload, err := json.Marshal(vehicleStatus{
		VIN:           v.VIN,
		Name:          v.Name(),
		Online:        status.Online,
		SentryEnabled: status.SentryEnabled,
		Triggered:     status.Triggered,
		Timestamp:     status.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshalling status: %w", err)
	}

	message, err := json.Marshal(Message{Channel: StatusChannel, Message: payload})
	if err != nil {
		return fmt.Errorf("marshalling websocket message: %w", err)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.SetWriteDeadline(deadline)
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Debugf("dropping websocket client: %s", err)
			delete(h.conns, conn)
			conn.Close()
		}
	}
	return nil
}

func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		delete(h.conns, conn)
	}
}
