package models

import (
	"testing"
	"time"
)

func TestInboundMessageValidate(t *testing.T) {
	base := InboundMessage{
		Channel:           ChannelWhatsApp,
		ContactExternalID: "5511999990000",
		ProviderMessageID: "wamid.1",
		Body:              "Olá",
		Kind:              MessageKindText,
		Timestamp:         time.Now(),
	}

	tests := []struct {
		name    string
		mutate  func(*InboundMessage)
		wantErr bool
	}{
		{"valid text message", func(im *InboundMessage) {}, false},
		{"invalid channel", func(im *InboundMessage) { im.Channel = "pager" }, true},
		{"missing external id", func(im *InboundMessage) { im.ContactExternalID = "" }, true},
		{"missing provider id", func(im *InboundMessage) { im.ProviderMessageID = "" }, true},
		{"empty body and transcript", func(im *InboundMessage) { im.Body = "" }, true},
		{"audio with transcript only", func(im *InboundMessage) {
			im.Body = ""
			im.Kind = MessageKindAudio
			im.Transcript = "quero agendar"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im := base
			tt.mutate(&im)
			err := im.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestMessageTextPrefersTranscriptForAudio(t *testing.T) {
	m := Message{Kind: MessageKindAudio, Body: "[audio]", Transcript: "bom dia"}
	if got := m.Text(); got != "bom dia" {
		t.Errorf("expected transcript, got %q", got)
	}
	m = Message{Kind: MessageKindText, Body: "bom dia"}
	if got := m.Text(); got != "bom dia" {
		t.Errorf("expected body, got %q", got)
	}
	m = Message{Kind: MessageKindAudio, Body: "[audio sem transcrição]"}
	if got := m.Text(); got != "[audio sem transcrição]" {
		t.Errorf("expected body fallback, got %q", got)
	}
}

func TestContactTags(t *testing.T) {
	c := &Contact{}
	if c.HasTag(TagImportant) {
		t.Error("new contact should have no tags")
	}
	c.AddTag(TagImportant)
	c.AddTag(TagImportant)
	if len(c.Tags) != 1 {
		t.Errorf("expected tag added once, got %v", c.Tags)
	}
	if !c.HasTag(TagImportant) {
		t.Error("expected Important tag present")
	}
}

func TestDecodeSchedulingDecision(t *testing.T) {
	d, err := DecodeSchedulingDecision(map[string]any{"accepted": true, "reason": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Accepted {
		t.Error("expected accepted=true")
	}

	if _, err := DecodeSchedulingDecision(map[string]any{"reason": "sem interesse"}); err == nil {
		t.Error("expected error for missing accepted field")
	}
	if _, err := DecodeSchedulingDecision(map[string]any{"accepted": "yes"}); err == nil {
		t.Error("expected error for non-boolean accepted field")
	}
}

func TestDecodeNameDecision(t *testing.T) {
	d, err := DecodeNameDecision(map[string]any{"identified": true, "name": "Maria Souza"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Name != "Maria Souza" {
		t.Errorf("expected extracted name, got %q", d.Name)
	}
	if _, err := DecodeNameDecision(map[string]any{"name": "Maria"}); err == nil {
		t.Error("expected error for missing identified field")
	}
}

func TestDecodeSummaryDecision(t *testing.T) {
	if _, err := DecodeSummaryDecision(map[string]any{}); err == nil {
		t.Error("expected error for missing correct field")
	}
	d, err := DecodeSummaryDecision(map[string]any{"correct": false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Correct {
		t.Error("expected correct=false")
	}
}
