// Package chatmodel holds the conversation state reconstructed from an AG-UI
// event stream and the Reconciler that folds events into it.
//
// State values are treated as immutable: Reconciler.Apply returns a new
// State and never writes through the slices or maps of its argument, so a
// State handed to an observer stays valid after later events are applied.
package chatmodel

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/nikhilthomas300/myCompanion/protocol"
)

// --- Messages ---------------------------------------------------------------

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// RoleFromWire maps a wire role onto the four roles the conversation
// tracks. Unknown and empty roles become assistant.
func RoleFromWire(role string) Role {
	switch role {
	case protocol.RoleUser:
		return RoleUser
	case protocol.RoleSystem, protocol.RoleDeveloper:
		return RoleSystem
	case protocol.RoleTool:
		return RoleTool
	default:
		return RoleAssistant
	}
}

// Message is one entry of the conversation.
type Message struct {
	Metadata   map[string]string `json:"metadata,omitempty"`
	ID         string            `json:"id"`
	Role       Role              `json:"role"`
	Content    string            `json:"content"`
	ToolCallID string            `json:"toolCallId,omitempty"`
}

// --- Tool invocations ------------------------------------------------------

// ToolStatus is the lifecycle state of a tool invocation.
type ToolStatus string

const (
	ToolStatusPending   ToolStatus = "pending"
	ToolStatusRunning   ToolStatus = "running"
	ToolStatusSucceeded ToolStatus = "succeeded"
	ToolStatusFailed    ToolStatus = "failed"
)

// IsTerminal returns true once the status can no longer change.
func (s ToolStatus) IsTerminal() bool {
	return s == ToolStatusSucceeded || s == ToolStatusFailed
}

// ToolOutput is the renderable result of a tool. ComponentID is passed to
// the UI verbatim; an empty ID selects the UI's generic fallback.
type ToolOutput struct {
	Props       map[string]any `json:"props"`
	ComponentID string         `json:"componentId"`
}

// ToolInvocation tracks one tool call within a run.
type ToolInvocation struct {
	Args          map[string]any `json:"args"`
	Output        *ToolOutput    `json:"output,omitempty"`
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Status        ToolStatus     `json:"status"`
	RequiresHuman bool           `json:"requiresHuman,omitempty"`
}

// --- Artifacts --------------------------------------------------------------

// ArtifactKind describes how an artifact payload should be presented.
type ArtifactKind string

const (
	ArtifactJSON  ArtifactKind = "json"
	ArtifactTable ArtifactKind = "table"
	ArtifactText  ArtifactKind = "text"
	ArtifactLink  ArtifactKind = "link"
)

// Artifact is a supplementary output attached to the conversation by a
// tool result.
type Artifact struct {
	Payload any          `json:"payload"`
	ID      string       `json:"id"`
	Kind    ArtifactKind `json:"kind"`
}

// --- Conversation state ----------------------------------------------------

// State is the observable conversation.
type State struct {
	// AgentState is the last STATE_SNAPSHOT value, sent back with the next
	// request.
	AgentState      json.RawMessage  `json:"agentState,omitempty"`
	ThreadID        string           `json:"threadId"`
	RunID           string           `json:"runId,omitempty"`
	Error           string           `json:"error,omitempty"`
	Messages        []Message        `json:"messages"`
	ToolInvocations []ToolInvocation `json:"toolInvocations"`
	Artifacts       []Artifact       `json:"artifacts"`
	Loading         bool             `json:"loading"`
}

// NewState returns an empty conversation for the given thread.
func NewState(threadID string) State {
	return State{ThreadID: threadID}
}

// Message returns the message with the given ID.
func (s State) Message(id string) (Message, bool) {
	i := s.messageIndex(id)
	if i < 0 {
		return Message{}, false
	}
	return s.Messages[i], true
}

// ToolInvocation returns the invocation with the given tool-call ID.
func (s State) ToolInvocation(id string) (ToolInvocation, bool) {
	i := s.toolIndex(id)
	if i < 0 {
		return ToolInvocation{}, false
	}
	return s.ToolInvocations[i], true
}

// WireMessages converts the history into the request representation.
func (s State) WireMessages() []protocol.Message {
	out := make([]protocol.Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		wm := protocol.Message{
			ID:      m.ID,
			Role:    string(m.Role),
			Content: protocol.TextContent(m.Content),
		}
		if m.Role == RoleTool {
			wm.ToolCallID = m.ToolCallID
		}
		out = append(out, wm)
	}
	return out
}

// Clone returns a deep copy that shares no mutable memory with s.
func (s State) Clone() State {
	s.AgentState = slices.Clone(s.AgentState)
	if s.Messages != nil {
		msgs := make([]Message, len(s.Messages))
		for i, m := range s.Messages {
			m.Metadata = maps.Clone(m.Metadata)
			msgs[i] = m
		}
		s.Messages = msgs
	}
	if s.ToolInvocations != nil {
		tools := make([]ToolInvocation, len(s.ToolInvocations))
		for i, inv := range s.ToolInvocations {
			tools[i] = inv.clone()
		}
		s.ToolInvocations = tools
	}
	if s.Artifacts != nil {
		arts := make([]Artifact, len(s.Artifacts))
		for i, a := range s.Artifacts {
			a.Payload = deepCopyInterface(a.Payload)
			arts[i] = a
		}
		s.Artifacts = arts
	}
	return s
}

func (inv ToolInvocation) clone() ToolInvocation {
	inv.Args = deepCopyMap(inv.Args)
	if inv.Output != nil {
		out := *inv.Output
		out.Props = deepCopyMap(out.Props)
		inv.Output = &out
	}
	return inv
}

func (s State) messageIndex(id string) int {
	return slices.IndexFunc(s.Messages, func(m Message) bool { return m.ID == id })
}

func (s State) toolIndex(id string) int {
	return slices.IndexFunc(s.ToolInvocations, func(t ToolInvocation) bool { return t.ID == id })
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return deepCopyInterface(m).(map[string]any)
}

// deepCopyInterface clones the mutable container types that JSON decoding
// produces. Scalars are immutable and returned as-is.
func deepCopyInterface(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(val))
		for k, v := range val {
			cp[k] = deepCopyInterface(v)
		}
		return cp
	case []any:
		cp := make([]any, len(val))
		for i, v := range val {
			cp[i] = deepCopyInterface(v)
		}
		return cp
	default:
		return v
	}
}
