// Package models defines the core data structures shared across modules:
// contacts, messages, appointments, inbound payloads and realtime events.
package models

import (
	"errors"
	"time"
)

// Channel identifies a messaging provider behind a channel adapter.
type Channel string

const (
	// ChannelWhatsApp is the native WhatsApp channel (whatsmeow).
	ChannelWhatsApp Channel = "whatsapp"
	// ChannelTwilioWhatsApp is WhatsApp Business delivered through Twilio.
	ChannelTwilioWhatsApp Channel = "twilio_whatsapp"
	// ChannelTelegram is the Telegram Bot API channel.
	ChannelTelegram Channel = "telegram"
)

// IsValidChannel checks if the given channel is supported.
func IsValidChannel(c Channel) bool {
	switch c {
	case ChannelWhatsApp, ChannelTwilioWhatsApp, ChannelTelegram:
		return true
	default:
		return false
	}
}

// MessageKind distinguishes plain text from transcribed audio messages.
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindAudio MessageKind = "audio"
)

// Direction indicates whether a message was received or sent.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// FunnelStatus represents the funnel stage of a contact.
type FunnelStatus string

const (
	// StatusNew is the stage of a contact that just sent its first message.
	StatusNew FunnelStatus = "novo"
	// StatusInProgress is the stage of a contact being actively qualified.
	StatusInProgress FunnelStatus = "em_atendimento"
	// StatusScheduled is the stage of a contact with a confirmed appointment.
	StatusScheduled FunnelStatus = "agendado"
)

// TagImportant marks a contact that rejected a scheduling proposal and
// should be reviewed by a human. Applied uniformly on every channel.
const TagImportant = "Important"

// Error variables shared across modules for error handling and testability.
var (
	ErrDuplicateMessage = errors.New("duplicate provider message id")
	ErrContactNotFound  = errors.New("contact not found")
	ErrEmptyRecipient   = errors.New("recipient cannot be empty")
	ErrEmptyBody        = errors.New("message body cannot be empty")
	ErrInvalidChannel   = errors.New("invalid channel")
)

// ProgressFlags is the set of boolean conversation-progress markers on a
// Contact. Flags are monotonic within one episode: once true, a flag is only
// reset by an explicit corrective action (summary rejection), never by
// unrelated steps.
type ProgressFlags struct {
	Greeted              bool `json:"greeted"`
	UrgencyDefined       bool `json:"urgency_defined"`
	SummaryRequested     bool `json:"summary_requested"`
	SummaryConfirmed     bool `json:"summary_confirmed"`
	SchedulingProposed   bool `json:"scheduling_proposed"`
	SchedulingConfirmed  bool `json:"scheduling_confirmed"`
	DateSelectionStarted bool `json:"date_selection_started"`
}

// Contact represents a person who has messaged the business on some channel.
// Mutated by the action executor only; created on first inbound message.
type Contact struct {
	ID                string        `json:"id"`
	Channel           Channel       `json:"channel"`
	ExternalID        string        `json:"external_id"`
	DisplayName       string        `json:"display_name,omitempty"`
	FullName          string        `json:"full_name,omitempty"`
	CaseSummary       string        `json:"case_summary,omitempty"`
	CaseNotes         string        `json:"case_notes,omitempty"`
	ProductOfInterest string        `json:"product_of_interest,omitempty"`
	Flags             ProgressFlags `json:"flags"`
	Status            FunnelStatus  `json:"status"`
	Tags              []string      `json:"tags,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// HasTag reports whether the contact carries the given tag.
func (c *Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends a tag if not already present.
func (c *Contact) AddTag(tag string) {
	if !c.HasTag(tag) {
		c.Tags = append(c.Tags, tag)
	}
}

// Message is one append-only log entry belonging to exactly one contact.
// ProviderMessageID is the dedup key: duplicates are rejected, not re-appended.
type Message struct {
	ID                string      `json:"id"`
	ContactID         string      `json:"contact_id"`
	ProviderMessageID string      `json:"provider_message_id"`
	Direction         Direction   `json:"direction"`
	Kind              MessageKind `json:"kind"`
	Body              string      `json:"body"`
	Transcript        string      `json:"transcript,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
}

// Text returns the usable text of the message: the transcript for audio
// messages when available, the body otherwise.
func (m *Message) Text() string {
	if m.Kind == MessageKindAudio && m.Transcript != "" {
		return m.Transcript
	}
	return m.Body
}

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCanceled  AppointmentStatus = "canceled"
)

// Appointment is produced only as a side effect of an accepted scheduling
// decision. Created once per accepted decision; not mutated afterward.
type Appointment struct {
	ID              string            `json:"id"`
	ContactID       string            `json:"contact_id"`
	Subject         string            `json:"subject"`
	StartsAt        time.Time         `json:"starts_at"`
	DurationMinutes int               `json:"duration_minutes"`
	Notes           string            `json:"notes,omitempty"`
	Status          AppointmentStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
}

// InboundMessage is the canonical form a channel adapter produces from a
// provider webhook or event, delivered once per accepted message.
type InboundMessage struct {
	Channel           Channel     `json:"channel"`
	ContactExternalID string      `json:"contact_external_id"`
	ProviderMessageID string      `json:"provider_message_id"`
	DisplayName       string      `json:"display_name,omitempty"`
	Body              string      `json:"body"`
	Kind              MessageKind `json:"kind"`
	Transcript        string      `json:"transcript,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
}

// Validate checks that the inbound message carries the minimum canonical
// fields. Malformed payloads are ignored upstream, never surfaced to users.
func (im *InboundMessage) Validate() error {
	if !IsValidChannel(im.Channel) {
		return ErrInvalidChannel
	}
	if im.ContactExternalID == "" {
		return ErrEmptyRecipient
	}
	if im.ProviderMessageID == "" {
		return errors.New("provider message id is required")
	}
	if im.Body == "" && im.Transcript == "" {
		return ErrEmptyBody
	}
	return nil
}

// Text returns the usable text of the inbound message.
func (im *InboundMessage) Text() string {
	if im.Kind == MessageKindAudio && im.Transcript != "" {
		return im.Transcript
	}
	return im.Body
}

// SendResult is the outcome reported by a channel adapter send.
type SendResult struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

// EventType identifies a realtime event emitted to observers.
type EventType string

const (
	// EventNewMessage signals an inbound message was recorded.
	EventNewMessage EventType = "nova_mensagem"
	// EventMessageSent signals an outbound message was sent and persisted.
	EventMessageSent EventType = "mensagem_enviada"
)

// Event is a fire-and-forget realtime notification. Best-effort UI hint,
// no delivery guarantee.
type Event struct {
	Type      EventType      `json:"type"`
	ContactID string         `json:"contact_id"`
	Channel   Channel        `json:"channel"`
	Payload   map[string]any `json:"payload,omitempty"`
}
