package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Content is the kind-specific payload of a memory. Each kind has its own
// record type with its required fields enforced at validation time, and each
// type knows how to render itself as the text that gets embedded.
type Content interface {
	// Kind returns the memory kind this content belongs to.
	Kind() Kind

	// Validate checks the kind's required fields.
	Validate() error

	// EmbedText returns the text representation used for embedding. This is
	// the contract that determines retrieval quality, so the per-kind rules
	// are fixed: facts embed verbatim, documents embed title+text, entities
	// embed "name (entity_type)" plus attribute lines, conversations and
	// reflections embed their dialogue form, and everything else falls back
	// to a plain rendering of the whole payload.
	EmbedText() string
}

// ConversationMessage is one turn inside a multi-message conversation.
type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationContent holds a single exchange (Role+Message) or a full
// message list. Exactly one of the two forms must be present.
type ConversationContent struct {
	Role     string                `json:"role,omitempty"`
	Message  string                `json:"message,omitempty"`
	Messages []ConversationMessage `json:"messages,omitempty"`
	Summary  string                `json:"summary,omitempty"`
}

func (c *ConversationContent) Kind() Kind { return KindConversation }

func (c *ConversationContent) Validate() error {
	if c.Role == "" && len(c.Messages) == 0 {
		return errValidationf("conversation must have either 'role' or 'messages'")
	}
	if c.Role != "" && c.Message == "" {
		return errValidationf("conversation with 'role' must have 'message'")
	}
	return nil
}

func (c *ConversationContent) EmbedText() string {
	if c.Role != "" {
		return fmt.Sprintf("%s: %s", c.Role, c.Message)
	}
	if len(c.Messages) > 0 {
		lines := make([]string, len(c.Messages))
		for i, m := range c.Messages {
			role := m.Role
			if role == "" {
				role = "unknown"
			}
			lines[i] = fmt.Sprintf("%s: %s", role, m.Content)
		}
		return strings.Join(lines, "\n")
	}
	return renderFallback(c)
}

// FactContent holds a discrete factual statement.
type FactContent struct {
	Fact       string   `json:"fact"`
	Confidence *float64 `json:"confidence,omitempty"`
	Domain     string   `json:"domain,omitempty"`
	Entities   []string `json:"entities,omitempty"`
}

func (c *FactContent) Kind() Kind { return KindFact }

func (c *FactContent) Validate() error {
	if c.Fact == "" {
		return errValidationf("fact must have 'fact' field")
	}
	if c.Confidence != nil && (*c.Confidence < 0.0 || *c.Confidence > 1.0) {
		return errValidationf("fact confidence must be between 0.0 and 1.0")
	}
	return nil
}

// EmbedText embeds the fact text verbatim.
func (c *FactContent) EmbedText() string { return c.Fact }

// DocumentContent holds a titled body of text.
type DocumentContent struct {
	Title   string `json:"title"`
	Text    string `json:"text"`
	Summary string `json:"summary,omitempty"`
}

func (c *DocumentContent) Kind() Kind { return KindDocument }

func (c *DocumentContent) Validate() error {
	if c.Title == "" || c.Text == "" {
		return errValidationf("document must have 'title' and 'text' fields")
	}
	return nil
}

func (c *DocumentContent) EmbedText() string {
	return c.Title + "\n" + c.Text
}

// EntityContent holds a named entity profile with free-form attributes.
type EntityContent struct {
	Name       string            `json:"name"`
	EntityType string            `json:"entity_type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (c *EntityContent) Kind() Kind { return KindEntity }

func (c *EntityContent) Validate() error {
	if c.Name == "" || c.EntityType == "" {
		return errValidationf("entity must have 'name' and 'entity_type' fields")
	}
	return nil
}

// EmbedText renders "name (entity_type)" followed by one "key: value" line
// per attribute. Attribute keys are sorted so the embedding is stable.
func (c *EntityContent) EmbedText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", c.Name, c.EntityType)
	keys := make([]string, 0, len(c.Attributes))
	for k := range c.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, c.Attributes[k])
	}
	return b.String()
}

// ReflectionContent holds an agent's reflection on a subject.
type ReflectionContent struct {
	Subject    string `json:"subject"`
	Reflection string `json:"reflection"`
}

func (c *ReflectionContent) Kind() Kind { return KindReflection }

func (c *ReflectionContent) Validate() error {
	if c.Subject == "" || c.Reflection == "" {
		return errValidationf("reflection must have 'subject' and 'reflection' fields")
	}
	return nil
}

func (c *ReflectionContent) EmbedText() string {
	return fmt.Sprintf("%s: %s", c.Subject, c.Reflection)
}

// CodeContent holds a code snippet.
type CodeContent struct {
	Language     string   `json:"language"`
	Code         string   `json:"code"`
	Description  string   `json:"description,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

func (c *CodeContent) Kind() Kind { return KindCode }

func (c *CodeContent) Validate() error {
	if c.Language == "" || c.Code == "" {
		return errValidationf("code must have 'language' and 'code' fields")
	}
	return nil
}

// EmbedText falls back to a rendering of the whole payload; code memories
// have no single natural-language field to privilege.
func (c *CodeContent) EmbedText() string { return renderFallback(c) }

// renderFallback converts an arbitrary content payload to "key: value"
// lines, sorted by key. Used for kinds without a dedicated extraction rule.
func renderFallback(c Content) string {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("memory of kind %s", c.Kind())
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return string(raw)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, fields[k]))
	}
	return strings.Join(lines, "\n")
}

// DecodeContent unmarshals a raw JSON payload into the typed content record
// for the given kind and validates it.
func DecodeContent(kind Kind, raw json.RawMessage) (Content, error) {
	var c Content
	switch kind {
	case KindConversation:
		c = &ConversationContent{}
	case KindFact:
		c = &FactContent{}
	case KindDocument:
		c = &DocumentContent{}
	case KindEntity:
		c = &EntityContent{}
	case KindReflection:
		c = &ReflectionContent{}
	case KindCode:
		c = &CodeContent{}
	default:
		return nil, errValidationf("unknown memory kind: %q", kind)
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, errValidationf("malformed %s content: %v", kind, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseContent builds typed content from a generic map, for callers sitting
// behind a transport that hands payloads over as loose JSON objects.
func ParseContent(kind Kind, fields map[string]any) (Content, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, errValidationf("malformed %s content: %v", kind, err)
	}
	return DecodeContent(kind, raw)
}
