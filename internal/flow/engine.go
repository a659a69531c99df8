package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/store"
)

// DefaultLLMTimeout bounds one step's LLM calls so a hanging provider call
// stalls a single run instead of the contact's pipeline forever.
const DefaultLLMTimeout = 120 * time.Second

// Engine ties the pipeline together: debounced burst handling, decision,
// resolution and execution. One Engine serves all contacts; per-contact
// ordering comes from the debouncer's per-key serialization.
type Engine struct {
	st         store.Store
	debouncer  *Debouncer
	resolver   *Resolver
	executor   *Executor
	llmTimeout time.Duration
}

// EngineOpts holds configuration options for the engine.
type EngineOpts struct {
	DebounceWindow time.Duration
	LLMTimeout     time.Duration
	HistoryLimit   int
	ProductInfo    string
}

// EngineOption defines a configuration option for the engine.
type EngineOption func(*EngineOpts)

// WithDebounceWindow overrides the debounce quiet window.
func WithDebounceWindow(window time.Duration) EngineOption {
	return func(o *EngineOpts) { o.DebounceWindow = window }
}

// WithLLMTimeout overrides the per-run LLM call deadline.
func WithLLMTimeout(timeout time.Duration) EngineOption {
	return func(o *EngineOpts) { o.LLMTimeout = timeout }
}

// WithEngineProductInfo sets the product detail block for prompt resolution.
func WithEngineProductInfo(info string) EngineOption {
	return func(o *EngineOpts) { o.ProductInfo = info }
}

// WithEngineHistoryLimit overrides the prompt history window.
func WithEngineHistoryLimit(limit int) EngineOption {
	return func(o *EngineOpts) { o.HistoryLimit = limit }
}

// NewEngine wires the pipeline over its collaborators.
func NewEngine(st store.Store, llm LLMClient, templates TemplateSource, slots SlotSource, sender Sender, emitter Emitter, opts ...EngineOption) *Engine {
	cfg := EngineOpts{
		DebounceWindow: DefaultDebounceWindow,
		LLMTimeout:     DefaultLLMTimeout,
		HistoryLimit:   DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	resolver := NewResolver(templates, st, slots,
		WithProductInfo(cfg.ProductInfo),
		WithHistoryLimit(cfg.HistoryLimit),
	)
	return &Engine{
		st:         st,
		debouncer:  NewDebouncer(cfg.DebounceWindow),
		resolver:   resolver,
		executor:   NewExecutor(st, llm, resolver, sender, slots, emitter),
		llmTimeout: cfg.LLMTimeout,
	}
}

// EnqueueInbound arms (or restarts) the contact's debounce window with the
// latest message. When the window elapses the engine runs one step.
func (e *Engine) EnqueueInbound(contact models.Contact, latest models.Message) {
	e.debouncer.Schedule(contact.ID, contact.Channel, func() error {
		return e.Run(contact.ID, latest)
	})
}

// Run executes one decision cycle for a contact: reload state, decide the
// next step, resolve its template and execute it. Exposed for tests and for
// manual re-drives; production traffic goes through EnqueueInbound.
func (e *Engine) Run(contactID string, latest models.Message) error {
	contact, err := e.st.GetContactByID(contactID)
	if err != nil {
		return fmt.Errorf("failed to load contact %s: %w", contactID, err)
	}
	if contact == nil {
		return fmt.Errorf("run aborted: %w: %s", models.ErrContactNotFound, contactID)
	}

	hasAppointment, err := e.st.HasAppointment(contactID)
	if err != nil {
		return fmt.Errorf("failed to check appointments for %s: %w", contactID, err)
	}

	selection := Decide(*contact, hasAppointment)
	if !selection.Due {
		slog.Debug("Engine.Run: no step due", "contactID", contactID)
		return nil
	}
	slog.Info("Engine.Run: step selected", "contactID", contactID, "step", selection.Step.Name, "rule", selection.Rule)

	prompt, err := e.resolver.Resolve(selection.Step.Template, *contact, latest)
	if err != nil {
		// Configuration gap: no template means no outbound message and no
		// state change for this turn.
		slog.Error("Engine.Run: template unavailable, step aborted", "error", err, "step", selection.Step.Name, "contactID", contactID)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.llmTimeout)
	defer cancel()

	if err := e.executor.Execute(ctx, *contact, selection.Step, prompt, latest); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Error("Engine.Run: step stalled past deadline", "step", selection.Step.Name, "contactID", contactID)
		}
		return fmt.Errorf("step %s failed: %w", selection.Step.Name, err)
	}
	return nil
}

// Debouncer exposes the underlying debouncer, for shutdown and tests.
func (e *Engine) Debouncer() *Debouncer {
	return e.debouncer
}
