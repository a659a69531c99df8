package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
)

// GenerateStructuredPrompt is GenerateStructured with a system instruction
// and the contact's latest text as the user turn.
func (c *Client) GenerateStructuredPrompt(ctx context.Context, system, user string, contract models.StructuredContract) (map[string]any, error) {
	return c.GenerateStructured(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		openai.UserMessage(user),
	}, contract)
}

// GenerateStructured runs a completion constrained to a JSON-schema response
// format built from the contract and returns the decoded field map. A failed
// API call is retried once; a response that violates the contract is not —
// the model already had its constrained chance, so the error is terminal.
func (c *Client) GenerateStructured(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, contract models.StructuredContract) (map[string]any, error) {
	params := openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            messages,
		Temperature:         openai.Float(c.temperature),
		MaxCompletionTokens: openai.Int(c.maxCompletionTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   contract.Name,
					Schema: contractSchema(contract),
					Strict: openai.Bool(true),
				},
			},
		},
	}

	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Warn("genai.GenerateStructured: completion failed, retrying once", "error", err, "contract", contract.Name)
		resp, err = c.chat.Create(ctx, params)
	}
	if err != nil {
		slog.Error("genai.GenerateStructured: completion failed after retry", "error", err, "contract", contract.Name)
		return nil, fmt.Errorf("structured completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.GenerateStructured: empty choice list", "contract", contract.Name)
		return nil, ErrNoChoicesReturned
	}

	content := resp.Choices[0].Message.Content
	fields, err := decodeStructured(content, contract)
	if err != nil {
		slog.Error("genai.GenerateStructured: response rejected", "error", err, "contract", contract.Name)
		return nil, err
	}
	slog.Debug("genai.GenerateStructured: decision decoded", "contract", contract.Name)
	return fields, nil
}

// contractSchema expands a contract into the JSON-schema document the API
// expects for constrained decoding.
func contractSchema(contract models.StructuredContract) map[string]any {
	properties := make(map[string]any, len(contract.Fields))
	required := make([]string, 0, len(contract.Fields))
	for _, f := range contract.Fields {
		prop := map[string]any{"type": string(f.Type)}
		if len(f.Enum) > 0 {
			prop["enum"] = f.Enum
		}
		properties[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

// decodeStructured parses the raw assistant content and validates it against
// the contract: every required field present, every present field of the
// declared type, enum values within range. Unknown extra fields are dropped.
func decodeStructured(content string, contract models.StructuredContract) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %v", ErrInvalidStructuredResponse, err)
	}

	fields := make(map[string]any, len(contract.Fields))
	for _, f := range contract.Fields {
		value, ok := raw[f.Name]
		if !ok {
			if f.Required {
				return nil, fmt.Errorf("%w: missing required field %q", ErrInvalidStructuredResponse, f.Name)
			}
			continue
		}
		if err := checkFieldType(f, value); err != nil {
			return nil, err
		}
		fields[f.Name] = value
	}
	return fields, nil
}

func checkFieldType(f models.ContractField, value any) error {
	switch f.Type {
	case models.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: field %q is not a boolean", ErrInvalidStructuredResponse, f.Name)
		}
	case models.FieldTypeNumber:
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("%w: field %q is not a number", ErrInvalidStructuredResponse, f.Name)
		}
	case models.FieldTypeString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: field %q is not a string", ErrInvalidStructuredResponse, f.Name)
		}
		if len(f.Enum) > 0 && !containsString(f.Enum, s) {
			return fmt.Errorf("%w: field %q value %q outside enum", ErrInvalidStructuredResponse, f.Name, s)
		}
	default:
		return fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidStructuredResponse, f.Name, f.Type)
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
