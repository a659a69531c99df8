// Package events fans realtime notifications out to websocket subscribers.
// Delivery is best-effort: a slow or gone subscriber is dropped, never
// blocks the pipeline.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
)

// subscriberBuffer bounds each subscriber's queue. A full queue means the
// subscriber is too slow and gets disconnected.
const subscriberBuffer = 32

// Hub is the process-wide event fan-out.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

type subscriber struct {
	events chan models.Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[*subscriber]struct{})}
}

// Emit delivers the event to every subscriber without blocking. Subscribers
// whose queue is full are dropped.
func (h *Hub) Emit(event models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for sub := range h.subscribers {
		select {
		case sub.events <- event:
		default:
			slog.Warn("Hub.Emit: slow subscriber dropped", "type", event.Type)
			close(sub.events)
			delete(h.subscribers, sub)
		}
	}
}

// SubscriberCount reports the current number of subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		close(sub.events)
		delete(h.subscribers, sub)
	}
}

func (h *Hub) subscribe() (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	sub := &subscriber{events: make(chan models.Event, subscriberBuffer)}
	h.subscribers[sub] = struct{}{}
	return sub, true
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; ok {
		close(sub.events)
		delete(h.subscribers, sub)
	}
}

// ServeHTTP upgrades the request to a websocket and streams events as JSON
// until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("Hub.ServeHTTP: websocket accept failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sub, ok := h.subscribe()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "hub closed")
		return
	}
	defer h.unsubscribe(sub)
	slog.Info("Hub.ServeHTTP: subscriber connected", "remote", r.RemoteAddr)

	ctx := r.Context()
	for {
		select {
		case event, open := <-sub.events:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				slog.Error("Hub.ServeHTTP: failed to marshal event", "error", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				slog.Debug("Hub.ServeHTTP: subscriber write failed, disconnecting", "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// WriteTo streams events into an arbitrary context-bound consumer. Used by
// tests and by non-websocket observers.
func (h *Hub) WriteTo(ctx context.Context, consume func(models.Event)) {
	sub, ok := h.subscribe()
	if !ok {
		return
	}
	defer h.unsubscribe(sub)
	for {
		select {
		case event, open := <-sub.events:
			if !open {
				return
			}
			consume(event)
		case <-ctx.Done():
			return
		}
	}
}
