package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
)

// fakeLLM returns canned outputs and records every prompt it saw.
type fakeLLM struct {
	mu            sync.Mutex
	text          string
	textErr       error
	fields        map[string]any
	structuredErr error

	freePrompts       []string
	freeUsers         []string
	structuredPrompts []string
}

func (f *fakeLLM) GeneratePrompt(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freePrompts = append(f.freePrompts, system)
	f.freeUsers = append(f.freeUsers, user)
	if f.textErr != nil {
		return "", f.textErr
	}
	return f.text, nil
}

func (f *fakeLLM) GenerateStructuredPrompt(ctx context.Context, system, user string, contract models.StructuredContract) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.structuredPrompts = append(f.structuredPrompts, system)
	if f.structuredErr != nil {
		return nil, f.structuredErr
	}
	return f.fields, nil
}

func (f *fakeLLM) freeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.freePrompts)
}

// fakeSender records sends and can be told to fail.
type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakeSender) Send(ctx context.Context, channel models.Channel, recipient, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, text)
	return fmt.Sprintf("prov-%d", len(f.sent)), nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeEmitter records emitted events.
type fakeEmitter struct {
	mu     sync.Mutex
	events []models.Event
}

func (f *fakeEmitter) Emit(event models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeEmitter) byType(t models.EventType) []models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Event
	for _, e := range f.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeTemplates serves templates from a map.
type fakeTemplates map[string]string

func (f fakeTemplates) Get(name string) (string, error) {
	tpl, ok := f[name]
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}
	return tpl, nil
}

// allTemplates covers every step the funnel can reach.
func allTemplates() fakeTemplates {
	return fakeTemplates{
		string(models.StepGreeting):            "Cumprimente o contato.",
		string(models.StepUrgencyValidation):   "Pergunte a urgencia. Historico: {{historico}}",
		string(models.StepNameValidation):      "Extraia o nome. Mensagem: {{mensagem}}",
		string(models.StepSummaryVerification): "O contato confirmou o resumo? Resumo: {{resumo}}",
		string(models.StepSchedulingAcceptance): "O contato aceitou algum horario?",
		string(models.StepSummaryRequest):       "Resuma o caso e peca confirmacao. Historico: {{historico}}",
		string(models.StepSchedulingProposal):   "Ofereca os horarios: {{horarios}}",
		string(models.StepSchedulingAccepted):   "Confirme o agendamento para {{primeiro_nome}}.",
		string(models.StepSchedulingRejected):   "Lamente e encerre com cordialidade.",
		string(models.StepNameRetry):            "Peca novamente o nome completo.",
	}
}

// fakeSlots is a deterministic slot source.
type fakeSlots struct {
	mu     sync.Mutex
	slots  []time.Time
	booked []models.Appointment
	err    error
}

func (f *fakeSlots) NextSlots(count int) ([]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if count > len(f.slots) {
		count = len(f.slots)
	}
	return f.slots[:count], nil
}

func (f *fakeSlots) FormatSlots(slots []time.Time) string {
	out := ""
	for i, s := range slots {
		if i > 0 {
			out += "\n"
		}
		out += s.Format("02/01/2006 15:04")
	}
	return out
}

func (f *fakeSlots) Book(contactID, subject string, startsAt time.Time) (models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appt := models.Appointment{
		ID:        fmt.Sprintf("appt-%d", len(f.booked)+1),
		ContactID: contactID,
		Subject:   subject,
		StartsAt:  startsAt,
		Status:    models.AppointmentStatusConfirmed,
	}
	f.booked = append(f.booked, appt)
	return appt, nil
}
