package stream

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
)

func TestPublishFansOutToSubscribers(t *testing.T) {
	h := NewHub(slog.Default())

	id1, ch1 := h.subscribe()
	id2, ch2 := h.subscribe()
	defer h.unsubscribe(id1)
	defer h.unsubscribe(id2)

	h.Publish("created", map[string]any{"id": 1})

	for _, ch := range []chan []byte{ch1, ch2} {
		select {
		case msg := <-ch:
			var env struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(msg, &env); err != nil {
				t.Fatalf("message is not JSON: %v", err)
			}
			if env.Event != "created" {
				t.Fatalf("event = %q", env.Event)
			}
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestPublishDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub(slog.Default())
	id, ch := h.subscribe()
	defer h.unsubscribe(id)

	// Fill the buffer; further publishes must not block.
	for i := 0; i < subBufferSize+5; i++ {
		done := make(chan struct{})
		go func() {
			h.Publish("analyzed", i)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Publish blocked on a full subscriber")
		}
	}
	if len(ch) != subBufferSize {
		t.Fatalf("buffered %d messages, want %d", len(ch), subBufferSize)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub(slog.Default())
	id, _ := h.subscribe()
	if h.SubscriberCount() != 1 {
		t.Fatalf("count = %d", h.SubscriberCount())
	}
	h.unsubscribe(id)
	if h.SubscriberCount() != 0 {
		t.Fatalf("count = %d after unsubscribe", h.SubscriberCount())
	}
	// Publishing with no subscribers is a no-op.
	h.Publish("resolved", nil)
}

func TestWebsocketDelivery(t *testing.T) {
	h := NewHub(slog.Default())
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscriber registers inside ServeHTTP; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for h.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.Publish("created", map[string]int{"id": 42})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env struct {
		Event string         `json:"event"`
		Data  map[string]int `json:"data"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Event != "created" || env.Data["id"] != 42 {
		t.Fatalf("got %+v", env)
	}
}
