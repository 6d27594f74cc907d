// Package stream pushes incident lifecycle events to connected dashboard
// clients over websockets.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	pingInterval  = 30 * time.Second
	subBufferSize = 16
)

// Hub fans incident events out to websocket subscribers. Publishing never
// blocks: slow subscribers drop messages instead of stalling the
// incident pipeline. Satisfies incident.Publisher.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[string]chan []byte
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subs: make(map[string]chan []byte),
	}
}

type envelope struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Publish broadcasts one event to every subscriber, best-effort.
func (h *Hub) Publish(event string, payload any) {
	msg, err := json.Marshal(envelope{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
	if err != nil {
		h.logger.Error("marshal stream event", "event", event, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("stream subscriber lagging, dropping event",
				"subscriber", id, "event", event)
		}
	}
}

func (h *Hub) subscribe() (string, chan []byte) {
	id := uuid.NewString()
	ch := make(chan []byte, subBufferSize)
	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// SubscriberCount is used by tests and the health endpoint.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade", "err", err)
		return
	}

	id, ch := h.subscribe()
	h.logger.Info("stream subscriber connected", "subscriber", id)
	defer func() {
		h.unsubscribe(id)
		conn.Close()
		h.logger.Info("stream subscriber disconnected", "subscriber", id)
	}()

	// Reader drains control frames and signals close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
