package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/strategy_autotrade/internal/domain"
	"go.uber.org/zap"
)

const (
	writeWait     = 10 * time.Second
	clientBuffer  = 32
	maxRecentKept = 100
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard may be served from another origin
	},
}

// Event is the websocket envelope: Type is "notification" or "status".
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub is the controller's notification sink. It remembers unexpired
// notifications and fans events out to websocket clients; a client whose
// buffer is full misses the event instead of blocking the sender.
type Hub struct {
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	recent  []domain.Notification
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		now:     time.Now,
		clients: make(map[*wsClient]struct{}),
	}
}

func (h *Hub) Notify(n domain.Notification) {
	h.mu.Lock()
	h.recent = append(h.pruneLocked(), n)
	if len(h.recent) > maxRecentKept {
		h.recent = h.recent[len(h.recent)-maxRecentKept:]
	}
	h.mu.Unlock()

	h.Broadcast("notification", n)
}

// Active returns unexpired notifications, oldest first.
func (h *Hub) Active() []domain.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent = h.pruneLocked()
	out := make([]domain.Notification, len(h.recent))
	copy(out, h.recent)
	return out
}

func (h *Hub) pruneLocked() []domain.Notification {
	now := h.now()
	kept := h.recent[:0]
	for _, n := range h.recent {
		if !n.Expired(now) {
			kept = append(kept, n)
		}
	}
	return kept
}

func (h *Hub) Broadcast(eventType string, data any) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Debug("Dropping event for slow client", zap.String("type", eventType))
		}
	}
}

// PushStatus broadcasts status() every interval until ctx ends.
func (h *Hub) PushStatus(ctx context.Context, interval time.Duration, status func() any) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if h.ClientCount() > 0 {
				h.Broadcast("status", status())
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request, sends initial as a status event and then
// streams hub events until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, initial any) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	c := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()

	h.logger.Info("Dashboard client connected", zap.String("remote", r.RemoteAddr))

	// Inbound messages are ignored; reading detects the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Event{Type: "status", Data: initial}); err != nil {
		h.logger.Debug("Write error", zap.Error(err))
		return
	}

	for {
		select {
		case msg := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("Write error", zap.Error(err))
				return
			}
		case <-done:
			h.logger.Info("Dashboard client disconnected", zap.String("remote", r.RemoteAddr))
			return
		}
	}
}
