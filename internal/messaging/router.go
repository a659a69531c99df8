package messaging

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/store"
)

// Enqueuer is the engine-side contract the router hands accepted messages to.
type Enqueuer interface {
	EnqueueInbound(contact models.Contact, latest models.Message)
}

// EventEmitter publishes best-effort realtime events.
type EventEmitter interface {
	Emit(event models.Event)
}

// Router turns provider inbound messages into persisted state: it validates
// the payload, finds or creates the contact, appends the message log entry,
// emits nova_mensagem and arms the engine's debounce window. Duplicates are
// a success no-op and do not arm the debouncer.
type Router struct {
	st      store.Store
	engine  Enqueuer
	emitter EventEmitter
	now     func() time.Time
}

// NewRouter wires a router over the store, engine and event emitter.
func NewRouter(st store.Store, engine Enqueuer, emitter EventEmitter) *Router {
	return &Router{st: st, engine: engine, emitter: emitter, now: time.Now}
}

// HandleInbound processes one provider message. Malformed payloads are
// dropped silently; nothing in this path ever surfaces an error to the
// contact.
func (r *Router) HandleInbound(in models.InboundMessage) {
	if err := in.Validate(); err != nil {
		slog.Warn("Router.HandleInbound: malformed inbound message ignored", "error", err, "channel", in.Channel)
		return
	}

	contact, err := r.findOrCreateContact(in)
	if err != nil {
		slog.Error("Router.HandleInbound: contact lookup failed", "error", err, "channel", in.Channel, "externalID", in.ContactExternalID)
		return
	}

	msg := models.Message{
		ID:                uuid.New().String(),
		ContactID:         contact.ID,
		ProviderMessageID: in.ProviderMessageID,
		Direction:         models.DirectionInbound,
		Kind:              in.Kind,
		Body:              in.Body,
		Transcript:        in.Transcript,
		Timestamp:         in.Timestamp,
	}
	if msg.Kind == "" {
		msg.Kind = models.MessageKindText
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.now()
	}

	if err := r.st.AddMessage(msg); err != nil {
		if errors.Is(err, models.ErrDuplicateMessage) {
			slog.Debug("Router.HandleInbound: duplicate message dropped", "contactID", contact.ID, "providerMessageID", in.ProviderMessageID)
			return
		}
		slog.Error("Router.HandleInbound: failed to persist message", "error", err, "contactID", contact.ID)
		return
	}

	r.emitter.Emit(models.Event{
		Type:      models.EventNewMessage,
		ContactID: contact.ID,
		Channel:   contact.Channel,
		Payload:   map[string]any{"message_id": msg.ID, "body": msg.Text()},
	})

	r.engine.EnqueueInbound(contact, msg)
	slog.Debug("Router.HandleInbound: message accepted", "contactID", contact.ID, "channel", contact.Channel)
}

// findOrCreateContact resolves the contact by (channel, external id),
// creating a fresh record in the novo funnel stage on first message.
func (r *Router) findOrCreateContact(in models.InboundMessage) (models.Contact, error) {
	existing, err := r.st.GetContact(in.Channel, in.ContactExternalID)
	if err != nil {
		return models.Contact{}, fmt.Errorf("failed to look contact up: %w", err)
	}
	if existing != nil {
		if in.DisplayName != "" && existing.DisplayName == "" {
			existing.DisplayName = in.DisplayName
			if err := r.st.SaveContact(*existing); err != nil {
				slog.Warn("Router.findOrCreateContact: failed to record display name", "error", err, "contactID", existing.ID)
			}
		}
		return *existing, nil
	}

	now := r.now()
	contact := models.Contact{
		ID:          uuid.New().String(),
		Channel:     in.Channel,
		ExternalID:  in.ContactExternalID,
		DisplayName: in.DisplayName,
		Status:      models.StatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.st.SaveContact(contact); err != nil {
		return models.Contact{}, fmt.Errorf("failed to create contact: %w", err)
	}
	slog.Info("Router.findOrCreateContact: contact created", "contactID", contact.ID, "channel", contact.Channel)
	return contact, nil
}
