package flow

import (
	"log/slog"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
)

// decisionState is everything Decide looks at: the contact's flags and
// fields plus whether a confirmed appointment already exists.
type decisionState struct {
	contact        models.Contact
	hasAppointment bool
}

// rule pairs a predicate with the step it selects. Rules are evaluated in
// order; the first match wins and at most one step is selected.
type rule struct {
	name string
	when func(decisionState) bool
	step func() models.PromptStep
}

// rules is the ordered decision table. More-advanced conditions come first
// so a contact who has already progressed is never sent backward.
var rules = []rule{
	{
		name: "aceite_pendente",
		when: func(s decisionState) bool {
			f := s.contact.Flags
			return f.Greeted && f.UrgencyDefined &&
				f.SummaryRequested && f.SummaryConfirmed &&
				f.SchedulingProposed && !f.SchedulingConfirmed
		},
		step: SchedulingAcceptanceStep,
	},
	{
		name: "nome_pendente",
		when: func(s decisionState) bool {
			return s.contact.Flags.UrgencyDefined && s.contact.FullName == ""
		},
		step: NameValidationStep,
	},
	{
		name: "resumo_pendente",
		when: func(s decisionState) bool {
			f := s.contact.Flags
			return f.SummaryRequested && !f.SummaryConfirmed
		},
		step: SummaryVerificationStep,
	},
	{
		name: "urgencia_pendente",
		when: func(s decisionState) bool {
			return s.contact.Flags.Greeted && !s.contact.Flags.UrgencyDefined
		},
		step: UrgencyValidationStep,
	},
	{
		name: "saudacao",
		when: func(s decisionState) bool { return true },
		step: GreetingStep,
	},
}

// Decide selects the next step for a contact. Pure and total: it always
// resolves to exactly one step or to "no step due". Once every flag is true
// and a confirmed appointment exists the contact is terminal and repeated
// calls are a no-op.
func Decide(contact models.Contact, hasAppointment bool) models.StepSelection {
	state := decisionState{contact: contact, hasAppointment: hasAppointment}

	if isTerminal(state) {
		slog.Debug("flow.Decide: contact terminal, no step due", "contactID", contact.ID)
		return models.StepSelection{Due: false}
	}

	for _, r := range rules {
		if r.when(state) {
			return models.StepSelection{Due: true, Step: r.step(), Rule: r.name}
		}
	}
	// Unreachable: the last rule always matches.
	return models.StepSelection{Due: false}
}

func isTerminal(s decisionState) bool {
	f := s.contact.Flags
	return f.Greeted && f.UrgencyDefined && f.SummaryRequested && f.SummaryConfirmed &&
		f.SchedulingProposed && f.SchedulingConfirmed && s.hasAppointment
}

// Step catalog. Each constructor returns the step's template name, whether a
// structured decision is required and the contract constraining it.

// GreetingStep is the base step for a contact that was never greeted.
func GreetingStep() models.PromptStep {
	return models.PromptStep{
		Name:     models.StepGreeting,
		Template: string(models.StepGreeting),
	}
}

// UrgencyValidationStep probes how urgent the contact's case is.
func UrgencyValidationStep() models.PromptStep {
	return models.PromptStep{
		Name:     models.StepUrgencyValidation,
		Template: string(models.StepUrgencyValidation),
	}
}

// NameValidationStep extracts the contact's full name from the conversation.
func NameValidationStep() models.PromptStep {
	return models.PromptStep{
		Name:       models.StepNameValidation,
		Template:   string(models.StepNameValidation),
		Structured: true,
		Contract: &models.StructuredContract{
			Name: string(models.StepNameValidation),
			Fields: []models.ContractField{
				{Name: "identified", Type: models.FieldTypeBoolean, Required: true},
				{Name: "name", Type: models.FieldTypeString},
			},
		},
	}
}

// SummaryVerificationStep checks whether the contact confirmed the derived
// case summary.
func SummaryVerificationStep() models.PromptStep {
	return models.PromptStep{
		Name:       models.StepSummaryVerification,
		Template:   string(models.StepSummaryVerification),
		Structured: true,
		Contract: &models.StructuredContract{
			Name: string(models.StepSummaryVerification),
			Fields: []models.ContractField{
				{Name: "correct", Type: models.FieldTypeBoolean, Required: true},
			},
		},
	}
}

// SchedulingAcceptanceStep evaluates the contact's reply to a scheduling
// proposal.
func SchedulingAcceptanceStep() models.PromptStep {
	return models.PromptStep{
		Name:       models.StepSchedulingAcceptance,
		Template:   string(models.StepSchedulingAcceptance),
		Structured: true,
		Contract: &models.StructuredContract{
			Name: string(models.StepSchedulingAcceptance),
			Fields: []models.ContractField{
				{Name: "accepted", Type: models.FieldTypeBoolean, Required: true},
				{Name: "reason", Type: models.FieldTypeString},
			},
		},
	}
}
