package flow

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/store"
)

// DefaultHistoryLimit is the conversation-history window interpolated into
// templates, oldest-first.
const DefaultHistoryLimit = 20

// DefaultSlotCount is how many open slots a scheduling proposal offers.
const DefaultSlotCount = 3

var placeholderPattern = regexp.MustCompile(`\{\{([a-z_]+)\}\}`)

// Resolver substitutes the closed set of placeholders into a step template:
// {{historico}}, {{mensagem}}, {{produto}}, {{resumo}}, {{horarios}} and
// {{primeiro_nome}}. Unknown placeholders are replaced with a literal
// diagnostic marker so template misconfiguration stays visible.
type Resolver struct {
	templates    TemplateSource
	st           store.Store
	slots        SlotSource
	productInfo  string
	historyLimit int
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithProductInfo sets the default product detail block used when a contact
// has no product of interest recorded.
func WithProductInfo(info string) ResolverOption {
	return func(r *Resolver) { r.productInfo = info }
}

// WithHistoryLimit overrides the history window size.
func WithHistoryLimit(limit int) ResolverOption {
	return func(r *Resolver) { r.historyLimit = limit }
}

// NewResolver creates a resolver over the template source, message store and
// slot source.
func NewResolver(templates TemplateSource, st store.Store, slots SlotSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		templates:    templates,
		st:           st,
		slots:        slots,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches the template for the step and substitutes live data for a
// contact and its latest message.
func (r *Resolver) Resolve(stepTemplate string, contact models.Contact, latest models.Message) (string, error) {
	tpl, err := r.templates.Get(stepTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to fetch template %s: %w", stepTemplate, err)
	}
	if strings.TrimSpace(tpl) == "" {
		return "", fmt.Errorf("template %s is empty", stepTemplate)
	}

	resolved := placeholderPattern.ReplaceAllStringFunc(tpl, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := r.lookup(name, contact, latest)
		if !ok {
			slog.Warn("Resolver.Resolve: unknown placeholder", "placeholder", name, "template", stepTemplate)
			return "[placeholder desconhecido: " + name + "]"
		}
		return value
	})
	return resolved, nil
}

func (r *Resolver) lookup(name string, contact models.Contact, latest models.Message) (string, bool) {
	switch name {
	case "historico":
		return r.history(contact.ID, latest), true
	case "mensagem":
		return latest.Text(), true
	case "produto":
		if contact.ProductOfInterest != "" {
			return contact.ProductOfInterest, true
		}
		return r.productInfo, true
	case "resumo":
		return contact.CaseSummary, true
	case "horarios":
		return r.openSlots(), true
	case "primeiro_nome":
		return firstName(contact), true
	default:
		return "", false
	}
}

// history renders the contact's recent messages oldest-first, excluding the
// message currently being processed so it is not duplicated in the prompt.
func (r *Resolver) history(contactID string, latest models.Message) string {
	messages, err := r.st.ListMessages(contactID, r.historyLimit+1)
	if err != nil {
		slog.Error("Resolver.history: failed to list messages", "error", err, "contactID", contactID)
		return ""
	}

	var b strings.Builder
	count := 0
	for _, m := range messages {
		if m.ProviderMessageID == latest.ProviderMessageID && m.Direction == latest.Direction {
			continue
		}
		if count >= r.historyLimit {
			break
		}
		if count > 0 {
			b.WriteString("\n")
		}
		label := "Contato"
		if m.Direction == models.DirectionOutbound {
			label = "Atendente"
		}
		b.WriteString(label + ": " + m.Text())
		count++
	}
	return b.String()
}

func (r *Resolver) openSlots() string {
	slots, err := r.slots.NextSlots(DefaultSlotCount)
	if err != nil {
		slog.Error("Resolver.openSlots: failed to compute slots", "error", err)
		return ""
	}
	return r.slots.FormatSlots(slots)
}

// firstName extracts the first token of the contact's full name, falling
// back to the channel display name.
func firstName(contact models.Contact) string {
	source := contact.FullName
	if source == "" {
		source = contact.DisplayName
	}
	fields := strings.Fields(source)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
