package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/verdantworks/verdant/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Operators connect from the same origin as the dashboard; the
	// surrounding application enforces auth before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscriber is one connected operator browser.
type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub is the notification channel: it fans published alert clusters
// out to every subscribed websocket client. A subscriber that cannot
// keep up is dropped rather than blocking delivery to the others.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]*subscriber)}
}

// alertsMessage is the wire envelope pushed to subscribers.
type alertsMessage struct {
	Kind     string                `json:"kind"`
	SentAt   time.Time             `json:"sent_at"`
	Clusters []domain.AlertCluster `json:"clusters"`
}

// Publish implements the scheduler's notification channel. Clusters
// arrive fully formed; the hub only serializes and fans out.
func (h *Hub) Publish(ctx context.Context, clusters []domain.AlertCluster) error {
	payload, err := json.Marshal(alertsMessage{
		Kind:     "alerts",
		SentAt:   time.Now().UTC(),
		Clusters: clusters,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert clusters: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("notification hub closed")
	}

	for id, sub := range h.subscribers {
		select {
		case sub.send <- payload:
		default:
			log.Warn().Str("subscriber", id).Msg("subscriber send buffer full, dropping connection")
			h.dropLocked(sub)
		}
	}
	return nil
}

// SubscriberCount reports the number of connected clients.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// ServeWS upgrades an HTTP request into an alert subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.subscribers[sub.id] = sub
	h.mu.Unlock()

	log.Info().Str("subscriber", sub.id).Str("remote", conn.RemoteAddr().String()).
		Msg("alert subscriber connected")

	go h.writeLoop(sub)
	go h.readLoop(sub)
}

// Close disconnects every subscriber and refuses further publishes.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, sub := range h.subscribers {
		h.dropLocked(sub)
	}
}

func (h *Hub) dropLocked(sub *subscriber) {
	if _, ok := h.subscribers[sub.id]; !ok {
		return
	}
	delete(h.subscribers, sub.id)
	close(sub.send)
}

func (h *Hub) writeLoop(sub *subscriber) {
	defer sub.conn.Close()
	for payload := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Debug().Err(err).Str("subscriber", sub.id).Msg("subscriber write failed")
			break
		}
	}
}

// readLoop drains control frames and detects disconnects; subscribers
// never send application data.
func (h *Hub) readLoop(sub *subscriber) {
	defer func() {
		h.mu.Lock()
		h.dropLocked(sub)
		h.mu.Unlock()
		sub.conn.Close()
		log.Info().Str("subscriber", sub.id).Msg("alert subscriber disconnected")
	}()

	sub.conn.SetReadLimit(512)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}
