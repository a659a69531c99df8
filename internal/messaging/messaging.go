// Package messaging abstracts the messaging providers behind one Channel
// contract and routes inbound traffic into the orchestration engine.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
)

// Channel is one messaging provider: it can deliver outbound text and push
// normalized inbound messages to a handler.
type Channel interface {
	// Name identifies the provider.
	Name() models.Channel
	// Send delivers text to a recipient and returns the provider message id.
	Send(ctx context.Context, recipient, text string) (string, error)
	// Start begins delivering inbound messages to handle. Channels whose
	// inbound side is webhook-driven treat this as a no-op.
	Start(ctx context.Context, handle func(models.InboundMessage)) error
	// Stop shuts the provider connection down.
	Stop() error
}

// Registry holds the configured channels and fans sends out by channel name.
// It satisfies the engine's Sender contract.
type Registry struct {
	mu       sync.RWMutex
	channels map[models.Channel]Channel
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[models.Channel]Channel)}
}

// Register adds a channel. Registering the same name twice replaces the
// earlier channel.
func (r *Registry) Register(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.Name()] = ch
	slog.Info("Registry.Register: channel registered", "channel", ch.Name())
}

// Get returns the channel registered under name.
func (r *Registry) Get(name models.Channel) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// Send routes an outbound text through the named channel.
func (r *Registry) Send(ctx context.Context, channel models.Channel, recipient, text string) (string, error) {
	ch, ok := r.Get(channel)
	if !ok {
		return "", fmt.Errorf("%w: no channel registered for %s", models.ErrInvalidChannel, channel)
	}
	return ch.Send(ctx, recipient, text)
}

// StartAll starts every registered channel with the given inbound handler.
func (r *Registry) StartAll(ctx context.Context, handle func(models.InboundMessage)) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, ch := range r.channels {
		if err := ch.Start(ctx, handle); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", name, err)
		}
	}
	return nil
}

// StopAll stops every registered channel, logging per-channel failures.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, ch := range r.channels {
		if err := ch.Stop(); err != nil {
			slog.Error("Registry.StopAll: channel stop failed", "error", err, "channel", name)
		}
	}
}
