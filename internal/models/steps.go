// Package models defines step and structured-decision types for the
// conversation orchestration engine.
package models

import "fmt"

// StepName identifies one named unit of scripted behavior the engine can
// execute for a contact.
type StepName string

const (
	// StepGreeting is the base step for a contact that was never greeted.
	StepGreeting StepName = "saudacao"
	// StepUrgencyValidation probes how urgent the contact's case is.
	StepUrgencyValidation StepName = "validacao_urgencia"
	// StepNameValidation extracts the contact's full name (structured).
	StepNameValidation StepName = "validacao_nome"
	// StepSummaryVerification confirms the derived case summary (structured).
	StepSummaryVerification StepName = "verificacao_resumo"
	// StepSchedulingAcceptance evaluates the reply to a scheduling proposal
	// (structured).
	StepSchedulingAcceptance StepName = "aceite_agendamento"

	// Follow-up steps branched to by structured outcomes.

	// StepSummaryRequest derives the case summary and asks for confirmation.
	StepSummaryRequest StepName = "pedido_confirmacao_resumo"
	// StepSchedulingProposal offers open appointment slots.
	StepSchedulingProposal StepName = "proposta_agendamento"
	// StepSchedulingAccepted confirms the booked appointment to the contact.
	StepSchedulingAccepted StepName = "agendamento_aceito"
	// StepSchedulingRejected acknowledges a declined proposal.
	StepSchedulingRejected StepName = "agendamento_recusado"
	// StepNameRetry asks again for the contact's name.
	StepNameRetry StepName = "novo_pedido_nome"
)

// FieldType is the primitive type of a structured contract field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeNumber  FieldType = "number"
)

// ContractField describes one named field of a structured response contract.
type ContractField struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Enum     []string  `json:"enum,omitempty"`
	Required bool      `json:"required"`
}

// StructuredContract is the schema a structured LLM response must satisfy.
// Output that does not conform fails the run; no best-effort partials.
type StructuredContract struct {
	Name   string          `json:"name"`
	Fields []ContractField `json:"fields"`
}

// PromptStep couples a named template with metadata: whether it requires a
// structured decision and which contract constrains it. Templates themselves
// are owned by the prompt store.
type PromptStep struct {
	Name       StepName            `json:"name"`
	Template   string              `json:"template"`
	Structured bool                `json:"structured"`
	Contract   *StructuredContract `json:"contract,omitempty"`
}

// StepSelection is the decision engine's output: either no step is due, or
// exactly one step to run.
type StepSelection struct {
	Due  bool       `json:"due"`
	Step PromptStep `json:"step,omitempty"`
	Rule string     `json:"rule,omitempty"`
}

// SchedulingDecision is the structured outcome of the scheduling-acceptance
// step.
type SchedulingDecision struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
}

// NameDecision is the structured outcome of the name-validation step.
type NameDecision struct {
	Identified bool   `json:"identified"`
	Name       string `json:"name"`
}

// SummaryDecision is the structured outcome of the summary-verification step.
type SummaryDecision struct {
	Correct bool `json:"correct"`
}

// DecodeSchedulingDecision converts a validated structured response into a
// SchedulingDecision.
func DecodeSchedulingDecision(fields map[string]any) (SchedulingDecision, error) {
	accepted, ok := fields["accepted"].(bool)
	if !ok {
		return SchedulingDecision{}, fmt.Errorf("scheduling decision missing boolean field 'accepted'")
	}
	reason, _ := fields["reason"].(string)
	return SchedulingDecision{Accepted: accepted, Reason: reason}, nil
}

// DecodeNameDecision converts a validated structured response into a
// NameDecision.
func DecodeNameDecision(fields map[string]any) (NameDecision, error) {
	identified, ok := fields["identified"].(bool)
	if !ok {
		return NameDecision{}, fmt.Errorf("name decision missing boolean field 'identified'")
	}
	name, _ := fields["name"].(string)
	return NameDecision{Identified: identified, Name: name}, nil
}

// DecodeSummaryDecision converts a validated structured response into a
// SummaryDecision.
func DecodeSummaryDecision(fields map[string]any) (SummaryDecision, error) {
	correct, ok := fields["correct"].(bool)
	if !ok {
		return SummaryDecision{}, fmt.Errorf("summary decision missing boolean field 'correct'")
	}
	return SummaryDecision{Correct: correct}, nil
}
