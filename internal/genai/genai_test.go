package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
)

// mockChatService implements chatService for tests.
type mockChatService struct {
	responses []string
	errs      []error
	calls     int
	lastReq   openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	i := m.calls
	m.calls++
	m.lastReq = params
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	content := ""
	if i < len(m.responses) {
		content = m.responses[i]
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}, nil
}

func newTestClient(mock *mockChatService) *Client {
	return &Client{
		chat:                mock,
		model:               DefaultModel,
		temperature:         DefaultTemperature,
		maxCompletionTokens: DefaultMaxCompletionTokens,
	}
}

func schedulingContract() models.StructuredContract {
	return models.StructuredContract{
		Name: "aceite_agendamento",
		Fields: []models.ContractField{
			{Name: "accepted", Type: models.FieldTypeBoolean, Required: true},
			{Name: "reason", Type: models.FieldTypeString},
		},
	}
}

func TestGenerate(t *testing.T) {
	mock := &mockChatService{responses: []string{"Olá! Como posso ajudar?"}}
	client := newTestClient(mock)

	got, err := client.Generate(context.Background(), []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("Atenda com cordialidade."),
		openai.UserMessage("oi"),
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "Olá! Como posso ajudar?" {
		t.Errorf("Generate() = %q, want assistant content", got)
	}
	if mock.calls != 1 {
		t.Errorf("expected 1 API call, got %d", mock.calls)
	}
}

func TestGenerateNoChoices(t *testing.T) {
	client := newTestClient(&mockChatService{})
	client.chat = &emptyChoicesService{}

	_, err := client.Generate(context.Background(), []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage("oi"),
	})
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("Generate() error = %v, want ErrNoChoicesReturned", err)
	}
}

type emptyChoicesService struct{}

func (emptyChoicesService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return &openai.ChatCompletion{}, nil
}

func TestGenerateStructured(t *testing.T) {
	mock := &mockChatService{responses: []string{`{"accepted": true, "reason": "quinta confirmada"}`}}
	client := newTestClient(mock)

	fields, err := client.GenerateStructured(context.Background(), []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage("pode ser quinta"),
	}, schedulingContract())
	if err != nil {
		t.Fatalf("GenerateStructured() error = %v", err)
	}
	if fields["accepted"] != true {
		t.Errorf("accepted = %v, want true", fields["accepted"])
	}
	if fields["reason"] != "quinta confirmada" {
		t.Errorf("reason = %v, want decoded string", fields["reason"])
	}
	if mock.lastReq.ResponseFormat.OfJSONSchema == nil {
		t.Error("expected JSON-schema response format on the request")
	}
}

func TestGenerateStructuredRetriesTransportFailure(t *testing.T) {
	mock := &mockChatService{
		errs:      []error{errors.New("connection reset")},
		responses: []string{"", `{"accepted": false, "reason": "sem horario"}`},
	}
	client := newTestClient(mock)

	fields, err := client.GenerateStructured(context.Background(), []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage("nao posso"),
	}, schedulingContract())
	if err != nil {
		t.Fatalf("GenerateStructured() error = %v, want retry to succeed", err)
	}
	if mock.calls != 2 {
		t.Errorf("expected 2 API calls, got %d", mock.calls)
	}
	if fields["accepted"] != false {
		t.Errorf("accepted = %v, want false", fields["accepted"])
	}
}

func TestGenerateStructuredGivesUpAfterRetry(t *testing.T) {
	transportErr := errors.New("connection reset")
	mock := &mockChatService{errs: []error{transportErr, transportErr}}
	client := newTestClient(mock)

	_, err := client.GenerateStructured(context.Background(), []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage("oi"),
	}, schedulingContract())
	if !errors.Is(err, transportErr) {
		t.Errorf("GenerateStructured() error = %v, want wrapped transport error", err)
	}
	if mock.calls != 2 {
		t.Errorf("expected exactly 2 API calls, got %d", mock.calls)
	}
}

func TestGenerateStructuredRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not JSON", content: "tudo certo, pode agendar"},
		{name: "missing required field", content: `{"reason": "ok"}`},
		{name: "wrong type", content: `{"accepted": "sim"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock := &mockChatService{responses: []string{tc.content}}
			client := newTestClient(mock)

			_, err := client.GenerateStructured(context.Background(), []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage("oi"),
			}, schedulingContract())
			if !errors.Is(err, ErrInvalidStructuredResponse) {
				t.Errorf("GenerateStructured() error = %v, want ErrInvalidStructuredResponse", err)
			}
			if mock.calls != 1 {
				t.Errorf("contract violations must not be retried, got %d calls", mock.calls)
			}
		})
	}
}

func TestGenerateStructuredEnumViolation(t *testing.T) {
	contract := models.StructuredContract{
		Name: "urgencia",
		Fields: []models.ContractField{
			{Name: "nivel", Type: models.FieldTypeString, Enum: []string{"baixa", "media", "alta"}, Required: true},
		},
	}
	mock := &mockChatService{responses: []string{`{"nivel": "urgentissima"}`}}
	client := newTestClient(mock)

	_, err := client.GenerateStructured(context.Background(), []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage("socorro"),
	}, contract)
	if !errors.Is(err, ErrInvalidStructuredResponse) {
		t.Errorf("GenerateStructured() error = %v, want ErrInvalidStructuredResponse", err)
	}
}
