package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/store"
)

// DefaultAppointmentSubject is the subject line of appointments booked on an
// accepted scheduling decision.
const DefaultAppointmentSubject = "Atendimento"

// Executor runs the selected step against the LLM and applies its side
// effects in a fixed order: obtain and validate the structured decision,
// perform the external effect (appointment booking), generate the outbound
// text, send it, and only on confirmed send persist the message and flag
// updates and emit the realtime event. A failed send advances nothing, so
// the same step is reconsidered on the next inbound message.
type Executor struct {
	st       store.Store
	llm      LLMClient
	resolver *Resolver
	sender   Sender
	slots    SlotSource
	emitter  Emitter
	subject  string
	now      func() time.Time
}

// NewExecutor wires an executor over its collaborators.
func NewExecutor(st store.Store, llm LLMClient, resolver *Resolver, sender Sender, slots SlotSource, emitter Emitter) *Executor {
	return &Executor{
		st:       st,
		llm:      llm,
		resolver: resolver,
		sender:   sender,
		slots:    slots,
		emitter:  emitter,
		subject:  DefaultAppointmentSubject,
		now:      time.Now,
	}
}

// Execute runs one step for a contact. prompt is the already-resolved
// template for the step itself; follow-up steps selected by a structured
// decision are resolved here.
func (e *Executor) Execute(ctx context.Context, contact models.Contact, step models.PromptStep, prompt string, latest models.Message) error {
	if !step.Structured {
		return e.executeFreeText(ctx, contact, step, prompt, latest)
	}

	fields, err := e.llm.GenerateStructuredPrompt(ctx, prompt, latest.Text(), *step.Contract)
	if err != nil {
		return fmt.Errorf("structured decision for step %s failed: %w", step.Name, err)
	}

	switch step.Name {
	case models.StepNameValidation:
		return e.executeNameValidation(ctx, contact, fields, latest)
	case models.StepSummaryVerification:
		return e.executeSummaryVerification(ctx, contact, fields, latest)
	case models.StepSchedulingAcceptance:
		return e.executeSchedulingAcceptance(ctx, contact, fields, latest)
	default:
		return fmt.Errorf("no structured branch for step %s", step.Name)
	}
}

// executeFreeText handles the steps whose LLM output is the outbound reply
// itself: greeting and urgency validation.
func (e *Executor) executeFreeText(ctx context.Context, contact models.Contact, step models.PromptStep, prompt string, latest models.Message) error {
	switch step.Name {
	case models.StepGreeting:
		return e.deliver(ctx, contact, prompt, latest, func(c *models.Contact, text string) {
			c.Flags.Greeted = true
			if c.Status == models.StatusNew {
				c.Status = models.StatusInProgress
			}
		})
	case models.StepUrgencyValidation:
		return e.deliver(ctx, contact, prompt, latest, func(c *models.Contact, text string) {
			c.Flags.UrgencyDefined = true
		})
	default:
		return fmt.Errorf("no free-text branch for step %s", step.Name)
	}
}

// executeNameValidation branches on the identified/name decision. On success
// the extracted name is recorded and the summary-request follow-up derives
// the case summary and asks the contact to confirm it.
func (e *Executor) executeNameValidation(ctx context.Context, contact models.Contact, fields map[string]any, latest models.Message) error {
	decision, err := models.DecodeNameDecision(fields)
	if err != nil {
		return fmt.Errorf("failed to decode name decision: %w", err)
	}

	if !decision.Identified || decision.Name == "" {
		slog.Info("Executor.executeNameValidation: name not identified, asking again", "contactID", contact.ID)
		return e.runFollowUp(ctx, contact, models.StepNameRetry, latest, func(c *models.Contact, text string) {})
	}

	slog.Info("Executor.executeNameValidation: name captured", "contactID", contact.ID)
	contact.FullName = decision.Name
	return e.runFollowUp(ctx, contact, models.StepSummaryRequest, latest, func(c *models.Contact, text string) {
		c.FullName = decision.Name
		c.CaseSummary = text
		c.Flags.SummaryRequested = true
	})
}

// executeSummaryVerification branches on the correct/incorrect decision. A
// confirmed summary advances straight to the scheduling proposal; a rejected
// one resets the confirmation and re-derives the summary.
func (e *Executor) executeSummaryVerification(ctx context.Context, contact models.Contact, fields map[string]any, latest models.Message) error {
	decision, err := models.DecodeSummaryDecision(fields)
	if err != nil {
		return fmt.Errorf("failed to decode summary decision: %w", err)
	}

	if !decision.Correct {
		slog.Info("Executor.executeSummaryVerification: summary rejected, re-deriving", "contactID", contact.ID)
		return e.runFollowUp(ctx, contact, models.StepSummaryRequest, latest, func(c *models.Contact, text string) {
			c.CaseSummary = text
			c.Flags.SummaryConfirmed = false
		})
	}

	slog.Info("Executor.executeSummaryVerification: summary confirmed, proposing slots", "contactID", contact.ID)
	contact.Flags.SummaryConfirmed = true
	return e.runFollowUp(ctx, contact, models.StepSchedulingProposal, latest, func(c *models.Contact, text string) {
		c.Flags.SummaryConfirmed = true
		c.Flags.SchedulingProposed = true
		c.Flags.DateSelectionStarted = true
	})
}

// executeSchedulingAcceptance branches on the accepted/rejected decision.
// Acceptance books the appointment before any text is generated, so a later
// send failure leaves a booked appointment but no advanced flag; rejection
// tags the contact for human review.
func (e *Executor) executeSchedulingAcceptance(ctx context.Context, contact models.Contact, fields map[string]any, latest models.Message) error {
	decision, err := models.DecodeSchedulingDecision(fields)
	if err != nil {
		return fmt.Errorf("failed to decode scheduling decision: %w", err)
	}

	if !decision.Accepted {
		slog.Info("Executor.executeSchedulingAcceptance: proposal rejected", "contactID", contact.ID, "reason", decision.Reason)
		return e.runFollowUp(ctx, contact, models.StepSchedulingRejected, latest, func(c *models.Contact, text string) {
			c.AddTag(models.TagImportant)
		})
	}

	slots, err := e.slots.NextSlots(1)
	if err != nil {
		return fmt.Errorf("failed to compute slot for booking: %w", err)
	}
	if len(slots) == 0 {
		return fmt.Errorf("no open slot available for contact %s", contact.ID)
	}
	appt, err := e.slots.Book(contact.ID, e.subject, slots[0])
	if err != nil {
		return fmt.Errorf("failed to book appointment: %w", err)
	}
	slog.Info("Executor.executeSchedulingAcceptance: appointment booked", "contactID", contact.ID, "startsAt", appt.StartsAt)

	return e.runFollowUp(ctx, contact, models.StepSchedulingAccepted, latest, func(c *models.Contact, text string) {
		c.Flags.SchedulingConfirmed = true
		c.Status = models.StatusScheduled
	})
}

// runFollowUp resolves a follow-up step's template and delivers its
// generated text. A missing template aborts the step silently: logged, no
// outbound message, no state change.
func (e *Executor) runFollowUp(ctx context.Context, contact models.Contact, step models.StepName, latest models.Message, mutate func(*models.Contact, string)) error {
	prompt, err := e.resolver.Resolve(string(step), contact, latest)
	if err != nil {
		slog.Error("Executor.runFollowUp: template unavailable, step aborted", "error", err, "step", step, "contactID", contact.ID)
		return nil
	}
	return e.deliver(ctx, contact, prompt, latest, mutate)
}

// deliver generates the outbound text, sends it, and only on confirmed send
// persists the message, applies the contact mutation and emits the
// mensagem_enviada event. Send failure skips everything after it.
func (e *Executor) deliver(ctx context.Context, contact models.Contact, prompt string, latest models.Message, mutate func(*models.Contact, string)) error {
	text, err := e.llm.GeneratePrompt(ctx, prompt, latest.Text())
	if err != nil {
		return fmt.Errorf("failed to generate reply: %w", err)
	}

	providerID, err := e.sender.Send(ctx, contact.Channel, contact.ExternalID, text)
	if err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	if providerID == "" {
		providerID = uuid.New().String()
	}

	now := e.now()
	msg := models.Message{
		ID:                uuid.New().String(),
		ContactID:         contact.ID,
		ProviderMessageID: providerID,
		Direction:         models.DirectionOutbound,
		Kind:              models.MessageKindText,
		Body:              text,
		Timestamp:         now,
	}
	if err := e.st.AddMessage(msg); err != nil && !errors.Is(err, models.ErrDuplicateMessage) {
		return fmt.Errorf("failed to persist outbound message: %w", err)
	}

	mutate(&contact, text)
	contact.UpdatedAt = now
	if err := e.st.SaveContact(contact); err != nil {
		return fmt.Errorf("failed to persist contact update: %w", err)
	}

	e.emitter.Emit(models.Event{
		Type:      models.EventMessageSent,
		ContactID: contact.ID,
		Channel:   contact.Channel,
		Payload:   map[string]any{"message_id": msg.ID, "body": text},
	})
	slog.Debug("Executor.deliver: reply delivered", "contactID", contact.ID, "messageID", msg.ID)
	return nil
}
