// Package flow is the conversation orchestration engine: it coalesces bursts
// of inbound messages per contact, decides the next scripted step from the
// contact's progress flags, resolves the step template, invokes the LLM in
// free-text or structured mode and applies the side effects in a fixed order.
package flow

import (
	"context"
	"time"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
)

// LLMClient is the gateway contract the engine needs: a free-text completion
// and a schema-constrained structured completion, both over a resolved
// system prompt plus the contact's latest text.
type LLMClient interface {
	GeneratePrompt(ctx context.Context, system, user string) (string, error)
	GenerateStructuredPrompt(ctx context.Context, system, user string, contract models.StructuredContract) (map[string]any, error)
}

// Sender delivers an outbound text through the channel the contact lives on
// and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, channel models.Channel, recipient, text string) (string, error)
}

// Emitter publishes best-effort realtime events to observers.
type Emitter interface {
	Emit(event models.Event)
}

// TemplateSource serves step templates by name.
type TemplateSource interface {
	Get(name string) (string, error)
}

// SlotSource exposes the calendar operations the engine uses: open slots for
// scheduling proposals and booking on acceptance.
type SlotSource interface {
	NextSlots(count int) ([]time.Time, error)
	FormatSlots(slots []time.Time) string
	Book(contactID, subject string, startsAt time.Time) (models.Appointment, error)
}
