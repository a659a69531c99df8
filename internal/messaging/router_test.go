package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/store"
)

type recordingEnqueuer struct {
	mu    sync.Mutex
	calls []models.Message
}

func (r *recordingEnqueuer) EnqueueInbound(contact models.Contact, latest models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, latest)
}

func (r *recordingEnqueuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingEmitter) Emit(event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func newTestRouter() (*Router, store.Store, *recordingEnqueuer, *recordingEmitter) {
	st := store.NewMemoryStore()
	enq := &recordingEnqueuer{}
	emit := &recordingEmitter{}
	return NewRouter(st, enq, emit), st, enq, emit
}

func inboundFixture() models.InboundMessage {
	return models.InboundMessage{
		Channel:           models.ChannelWhatsApp,
		ContactExternalID: "5511999990000",
		ProviderMessageID: "prov-1",
		DisplayName:       "Maria",
		Body:              "Ola",
		Kind:              models.MessageKindText,
		Timestamp:         time.Now(),
	}
}

func TestHandleInboundCreatesContactAndMessage(t *testing.T) {
	router, st, enq, emit := newTestRouter()

	router.HandleInbound(inboundFixture())

	contact, err := st.GetContact(models.ChannelWhatsApp, "5511999990000")
	if err != nil || contact == nil {
		t.Fatalf("GetContact() = %v, %v", contact, err)
	}
	if contact.Status != models.StatusNew {
		t.Errorf("new contact status = %q, want novo", contact.Status)
	}
	if contact.DisplayName != "Maria" {
		t.Errorf("DisplayName = %q, want from payload", contact.DisplayName)
	}

	msgs, err := st.ListMessages(contact.ID, 0)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("persisted %d messages, want 1", len(msgs))
	}
	if enq.count() != 1 {
		t.Errorf("debounce armed %d times, want 1", enq.count())
	}

	emit.mu.Lock()
	defer emit.mu.Unlock()
	if len(emit.events) != 1 || emit.events[0].Type != models.EventNewMessage {
		t.Errorf("events = %+v, want one nova_mensagem", emit.events)
	}
}

func TestHandleInboundDeduplicates(t *testing.T) {
	router, st, enq, _ := newTestRouter()

	in := inboundFixture()
	router.HandleInbound(in)
	router.HandleInbound(in)

	contact, _ := st.GetContact(models.ChannelWhatsApp, in.ContactExternalID)
	msgs, _ := st.ListMessages(contact.ID, 0)
	if len(msgs) != 1 {
		t.Errorf("duplicate produced %d messages, want exactly 1", len(msgs))
	}
	if enq.count() != 1 {
		t.Errorf("duplicate armed the debouncer: %d calls, want 1", enq.count())
	}
}

func TestHandleInboundIgnoresMalformed(t *testing.T) {
	router, st, enq, emit := newTestRouter()

	tests := []models.InboundMessage{
		{},
		{Channel: "instagram", ContactExternalID: "x", ProviderMessageID: "p", Body: "oi"},
		{Channel: models.ChannelWhatsApp, ProviderMessageID: "p", Body: "oi"},
		{Channel: models.ChannelWhatsApp, ContactExternalID: "x", Body: "oi"},
		{Channel: models.ChannelWhatsApp, ContactExternalID: "x", ProviderMessageID: "p"},
	}
	for _, in := range tests {
		router.HandleInbound(in)
	}

	contacts, err := st.ListContacts()
	if err != nil {
		t.Fatalf("ListContacts() error = %v", err)
	}
	if len(contacts) != 0 {
		t.Errorf("malformed payloads created %d contacts", len(contacts))
	}
	if enq.count() != 0 {
		t.Errorf("malformed payloads armed the debouncer %d times", enq.count())
	}
	emit.mu.Lock()
	defer emit.mu.Unlock()
	if len(emit.events) != 0 {
		t.Errorf("malformed payloads emitted %d events", len(emit.events))
	}
}

func TestHandleInboundReusesContact(t *testing.T) {
	router, st, _, _ := newTestRouter()

	first := inboundFixture()
	router.HandleInbound(first)

	second := first
	second.ProviderMessageID = "prov-2"
	second.Body = "ainda estou aqui"
	router.HandleInbound(second)

	contacts, _ := st.ListContacts()
	if len(contacts) != 1 {
		t.Fatalf("expected one contact, got %d", len(contacts))
	}
	msgs, _ := st.ListMessages(contacts[0].ID, 0)
	if len(msgs) != 2 {
		t.Errorf("expected 2 messages, got %d", len(msgs))
	}
}

func TestHandleInboundAudioTranscript(t *testing.T) {
	router, st, _, _ := newTestRouter()

	in := inboundFixture()
	in.Kind = models.MessageKindAudio
	in.Body = ""
	in.Transcript = "preciso remarcar meu horario"
	router.HandleInbound(in)

	contact, _ := st.GetContact(models.ChannelWhatsApp, in.ContactExternalID)
	msgs, _ := st.ListMessages(contact.ID, 0)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Text() != "preciso remarcar meu horario" {
		t.Errorf("Text() = %q, want transcript", msgs[0].Text())
	}
}

type stubChannel struct {
	name    models.Channel
	sent    []string
	sendErr error
}

func (s *stubChannel) Name() models.Channel { return s.name }
func (s *stubChannel) Send(ctx context.Context, recipient, text string) (string, error) {
	if s.sendErr != nil {
		return "", s.sendErr
	}
	s.sent = append(s.sent, text)
	return "prov-1", nil
}
func (s *stubChannel) Start(ctx context.Context, handle func(models.InboundMessage)) error {
	return nil
}
func (s *stubChannel) Stop() error { return nil }

func TestRegistrySendRoutesByChannel(t *testing.T) {
	reg := NewRegistry()
	wa := &stubChannel{name: models.ChannelWhatsApp}
	tg := &stubChannel{name: models.ChannelTelegram}
	reg.Register(wa)
	reg.Register(tg)

	if _, err := reg.Send(context.Background(), models.ChannelTelegram, "123", "oi"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(tg.sent) != 1 || len(wa.sent) != 0 {
		t.Errorf("send routed to wrong channel: wa=%d tg=%d", len(wa.sent), len(tg.sent))
	}

	_, err := reg.Send(context.Background(), models.ChannelTwilioWhatsApp, "x", "oi")
	if !errors.Is(err, models.ErrInvalidChannel) {
		t.Errorf("Send() to unregistered channel error = %v, want ErrInvalidChannel", err)
	}
}
