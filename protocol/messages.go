package protocol

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

// Wire roles accepted in message snapshots and sent in requests.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleDeveloper = "developer"
	RoleTool      = "tool"
	RoleActivity  = "activity"
)

// Message is a conversation message as carried on the wire, both in
// MESSAGES_SNAPSHOT events and in the run request history.
type Message struct {
	ID         string  `json:"id"`
	Role       string  `json:"role"`
	Content    Content `json:"content"`
	ToolCallID string  `json:"toolCallId,omitempty"`
	Name       string  `json:"name,omitempty"`
}

// ContentPart is one element of a multi-part message content list.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Content can be either a string or an array of content parts.
type Content struct {
	raw json.RawMessage
}

// TextContent returns string content.
func TextContent(s string) Content {
	b, _ := json.Marshal(s)
	return Content{raw: b}
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Content) UnmarshalJSON(data []byte) error {
	c.raw = append(c.raw[:0], data...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.raw == nil {
		return []byte(`""`), nil
	}
	return c.raw, nil
}

// JSONSchema describes Content for schema generation.
func (Content) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "array", Items: &jsonschema.Schema{Type: "object"}},
		},
	}
}

// IsString returns true if the content is a string.
func (c Content) IsString() bool {
	return len(c.raw) > 0 && c.raw[0] == '"'
}

// AsString returns the content as a string (if it is one).
func (c Content) AsString() (string, bool) {
	if !c.IsString() {
		return "", false
	}
	var s string
	if err := json.Unmarshal(c.raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// AsParts returns the content as content parts (if it is an array).
func (c Content) AsParts() ([]ContentPart, bool) {
	if len(c.raw) == 0 || c.raw[0] != '[' {
		return nil, false
	}
	var parts []ContentPart
	if err := json.Unmarshal(c.raw, &parts); err != nil {
		return nil, false
	}
	return parts, true
}

// Text flattens the content: a string is returned as is, a part list is
// reduced to its text parts joined by newlines. Anything else is empty.
func (c Content) Text() string {
	if s, ok := c.AsString(); ok {
		return s
	}
	parts, ok := c.AsParts()
	if !ok {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Tool describes a client-side tool offered to the agent.
type Tool struct {
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
}

// Context is a piece of caller-supplied context for the agent.
type Context struct {
	Description string `json:"description"`
	Value       string `json:"value"`
}

// RunAgentInput is the body of a run request.
type RunAgentInput struct {
	State          json.RawMessage `json:"state"`
	ForwardedProps json.RawMessage `json:"forwardedProps,omitempty"`
	ThreadID       string          `json:"threadId"`
	RunID          string          `json:"runId"`
	Messages       []Message       `json:"messages"`
	Tools          []Tool          `json:"tools"`
	Context        []Context       `json:"context"`
}

// NewRunAgentInput builds a request with empty tool and context lists.
// A nil state is sent as JSON null.
func NewRunAgentInput(threadID, runID string, messages []Message, state json.RawMessage) RunAgentInput {
	if messages == nil {
		messages = []Message{}
	}
	return RunAgentInput{
		ThreadID: threadID,
		RunID:    runID,
		Messages: messages,
		Tools:    []Tool{},
		Context:  []Context{},
		State:    state,
	}
}
