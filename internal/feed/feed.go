// Package feed broadcasts post changes to websocket subscribers.
package feed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ButyrinIA/fritter/internal/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	PostCreated = "post.created"
	PostUpdated = "post.updated"
	PostDeleted = "post.deleted"
)

type Event struct {
	Type   string       `json:"type"`
	PostID string       `json:"postId"`
	Post   *models.Post `json:"post,omitempty"`
	At     time.Time    `json:"at"`
}

// Hub fans events out to subscribers. A subscriber that falls behind by
// more than its buffer loses events instead of blocking publishers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	buffer      int
	logger      *zap.Logger
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{subscribers: make(map[chan Event]struct{}), buffer: buffer, logger: logger}
}

// Subscribe returns a channel of events that is closed once ctx is done.
func (h *Hub) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subscribers, ch)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

func (h *Hub) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.logger.Warn("feed subscriber is lagging, event dropped",
				zap.String("type", event.Type),
				zap.String("post_id", event.PostID),
			)
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Handler upgrades the request to a websocket and streams events as JSON
// until the client goes away.
func (h *Hub) Handler(upgrader websocket.Upgrader, writeTimeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Reads only detect the peer closing the connection.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for event := range h.Subscribe(ctx) {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}
