package messaging

import (
	"context"
	"log/slog"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/whatsapp"
)

// WhatsAppChannel adapts the whatsmeow-backed client to the Channel contract.
type WhatsAppChannel struct {
	client *whatsapp.Client
	done   chan struct{}
}

// NewWhatsAppChannel wraps a connected WhatsApp client.
func NewWhatsAppChannel(client *whatsapp.Client) *WhatsAppChannel {
	return &WhatsAppChannel{client: client, done: make(chan struct{})}
}

// Name identifies the provider.
func (c *WhatsAppChannel) Name() models.Channel {
	return models.ChannelWhatsApp
}

// Send delivers a text message and returns the provider message id.
func (c *WhatsAppChannel) Send(ctx context.Context, recipient, text string) (string, error) {
	return c.client.SendMessage(ctx, recipient, text)
}

// Start pumps the client's inbound stream into the handler.
func (c *WhatsAppChannel) Start(ctx context.Context, handle func(models.InboundMessage)) error {
	go func() {
		for {
			select {
			case msg, ok := <-c.client.Inbound():
				if !ok {
					return
				}
				handle(msg)
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
		}
	}()
	slog.Info("WhatsAppChannel.Start: inbound pump running")
	return nil
}

// Stop disconnects from the WhatsApp servers.
func (c *WhatsAppChannel) Stop() error {
	close(c.done)
	c.client.Disconnect()
	return nil
}
