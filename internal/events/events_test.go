package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
)

func testEvent(contactID string) models.Event {
	return models.Event{
		Type:      models.EventMessageSent,
		ContactID: contactID,
		Channel:   models.ChannelWhatsApp,
		Payload:   map[string]any{"body": "ola"},
	}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	received := make(map[string]int)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.WriteTo(ctx, func(e models.Event) {
				mu.Lock()
				received[e.ContactID]++
				mu.Unlock()
			})
		}()
	}

	// Wait for subscriptions to land.
	deadline := time.Now().Add(time.Second)
	for hub.SubscriberCount() != 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.SubscriberCount() != 3 {
		t.Fatalf("SubscriberCount() = %d, want 3", hub.SubscriberCount())
	}

	hub.Emit(testEvent("c1"))

	deadline = time.Now().Add(time.Second)
	for {
		mu.Lock()
		count := received["c1"]
		mu.Unlock()
		if count == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("event reached %d of 3 subscribers", count)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	wg.Wait()
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	sub, ok := hub.subscribe()
	if !ok {
		t.Fatal("subscribe() failed on open hub")
	}
	_ = sub

	// Never drained: overflow the buffer and one more to trigger the drop.
	for i := 0; i <= subscriberBuffer; i++ {
		hub.Emit(testEvent("c1"))
	}

	if hub.SubscriberCount() != 0 {
		t.Errorf("slow subscriber not dropped: count = %d", hub.SubscriberCount())
	}
	// Emitting after the drop must not panic or block.
	hub.Emit(testEvent("c2"))
}

func TestHubCloseDisconnectsSubscribers(t *testing.T) {
	hub := NewHub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.WriteTo(context.Background(), func(models.Event) {})
	}()

	deadline := time.Now().Add(time.Second)
	for hub.SubscriberCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	hub.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber still blocked after Close()")
	}
	if hub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d after Close(), want 0", hub.SubscriberCount())
	}

	// Emit and a late subscribe on a closed hub are no-ops.
	hub.Emit(testEvent("c1"))
	if _, ok := hub.subscribe(); ok {
		t.Error("subscribe() succeeded on closed hub")
	}
}
