// Package protocol defines the AG-UI event vocabulary consumed by the chat
// client: one struct per wire event type, the request body sent to the run
// endpoint, and the decoder that turns a frame payload into a typed Event.
package protocol

import "encoding/json"

// EventType is the wire discriminant carried in every event's "type" field.
type EventType string

const (
	EventTypeTextMessageStart   EventType = "TEXT_MESSAGE_START"
	EventTypeTextMessageContent EventType = "TEXT_MESSAGE_CONTENT"
	EventTypeTextMessageEnd     EventType = "TEXT_MESSAGE_END"
	EventTypeToolCallStart      EventType = "TOOL_CALL_START"
	EventTypeToolCallArgs       EventType = "TOOL_CALL_ARGS"
	EventTypeToolCallResult     EventType = "TOOL_CALL_RESULT"
	EventTypeToolCallEnd        EventType = "TOOL_CALL_END"
	EventTypeMessagesSnapshot   EventType = "MESSAGES_SNAPSHOT"
	EventTypeStateSnapshot      EventType = "STATE_SNAPSHOT"
	EventTypeRunStarted         EventType = "RUN_STARTED"
	EventTypeRunFinished        EventType = "RUN_FINISHED"
	EventTypeRunError           EventType = "RUN_ERROR"
)

// Event is a decoded protocol event. The set of implementations is closed:
// only types in this package satisfy it.
type Event interface {
	EventType() EventType
	sealed()
}

// TextMessageStartEvent opens an assistant message.
type TextMessageStartEvent struct {
	Timestamp *int64    `json:"timestamp,omitempty"`
	Type      EventType `json:"type"`
	MessageID string    `json:"messageId"`
	Role      string    `json:"role,omitempty"`
}

// EventType returns the event type.
func (e TextMessageStartEvent) EventType() EventType { return EventTypeTextMessageStart }

// TextMessageContentEvent carries one text fragment of a message.
type TextMessageContentEvent struct {
	Timestamp *int64    `json:"timestamp,omitempty"`
	Type      EventType `json:"type"`
	MessageID string    `json:"messageId"`
	Delta     string    `json:"delta"`
}

// EventType returns the event type.
func (e TextMessageContentEvent) EventType() EventType { return EventTypeTextMessageContent }

// TextMessageEndEvent closes a message.
type TextMessageEndEvent struct {
	Timestamp *int64    `json:"timestamp,omitempty"`
	Type      EventType `json:"type"`
	MessageID string    `json:"messageId"`
}

// EventType returns the event type.
func (e TextMessageEndEvent) EventType() EventType { return EventTypeTextMessageEnd }

// ToolCallStartEvent opens a tool invocation.
type ToolCallStartEvent struct {
	Timestamp       *int64    `json:"timestamp,omitempty"`
	Type            EventType `json:"type"`
	ToolCallID      string    `json:"toolCallId"`
	ToolCallName    string    `json:"toolCallName"`
	ParentMessageID string    `json:"parentMessageId,omitempty"`
}

// EventType returns the event type.
func (e ToolCallStartEvent) EventType() EventType { return EventTypeToolCallStart }

// ToolCallArgsEvent carries a fragment of the tool's JSON-encoded arguments.
type ToolCallArgsEvent struct {
	Timestamp  *int64    `json:"timestamp,omitempty"`
	Type       EventType `json:"type"`
	ToolCallID string    `json:"toolCallId"`
	Delta      string    `json:"delta"`
}

// EventType returns the event type.
func (e ToolCallArgsEvent) EventType() EventType { return EventTypeToolCallArgs }

// ToolCallResultEvent carries the tool's result. Content is itself a JSON
// document (component id, props, summary, artifacts) encoded as a string.
type ToolCallResultEvent struct {
	Timestamp  *int64    `json:"timestamp,omitempty"`
	Type       EventType `json:"type"`
	MessageID  string    `json:"messageId,omitempty"`
	ToolCallID string    `json:"toolCallId"`
	Content    string    `json:"content"`
	Role       string    `json:"role,omitempty"`
}

// EventType returns the event type.
func (e ToolCallResultEvent) EventType() EventType { return EventTypeToolCallResult }

// ToolCallEndEvent closes a tool invocation.
type ToolCallEndEvent struct {
	Timestamp  *int64    `json:"timestamp,omitempty"`
	Type       EventType `json:"type"`
	ToolCallID string    `json:"toolCallId"`
}

// EventType returns the event type.
func (e ToolCallEndEvent) EventType() EventType { return EventTypeToolCallEnd }

// MessagesSnapshotEvent carries the authoritative message history.
type MessagesSnapshotEvent struct {
	Timestamp *int64    `json:"timestamp,omitempty"`
	Type      EventType `json:"type"`
	Messages  []Message `json:"messages"`
}

// EventType returns the event type.
func (e MessagesSnapshotEvent) EventType() EventType { return EventTypeMessagesSnapshot }

// StateSnapshotEvent carries the agent's opaque shared state.
type StateSnapshotEvent struct {
	Timestamp *int64          `json:"timestamp,omitempty"`
	Type      EventType       `json:"type"`
	Snapshot  json.RawMessage `json:"snapshot"`
}

// EventType returns the event type.
func (e StateSnapshotEvent) EventType() EventType { return EventTypeStateSnapshot }

// RunStartedEvent marks the start of a run.
type RunStartedEvent struct {
	Timestamp   *int64    `json:"timestamp,omitempty"`
	Type        EventType `json:"type"`
	ThreadID    string    `json:"threadId"`
	RunID       string    `json:"runId"`
	ParentRunID string    `json:"parentRunId,omitempty"`
}

// EventType returns the event type.
func (e RunStartedEvent) EventType() EventType { return EventTypeRunStarted }

// RunFinishedEvent marks the successful end of a run.
type RunFinishedEvent struct {
	Timestamp *int64          `json:"timestamp,omitempty"`
	Type      EventType       `json:"type"`
	ThreadID  string          `json:"threadId"`
	RunID     string          `json:"runId"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// EventType returns the event type.
func (e RunFinishedEvent) EventType() EventType { return EventTypeRunFinished }

// RunErrorEvent reports that the agent failed the run.
type RunErrorEvent struct {
	Timestamp *int64    `json:"timestamp,omitempty"`
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
}

// EventType returns the event type.
func (e RunErrorEvent) EventType() EventType { return EventTypeRunError }

// UnknownEvent preserves an event whose type this client does not handle.
type UnknownEvent struct {
	Type EventType
	Raw  json.RawMessage
}

// EventType returns the wire type, which may be empty.
func (e UnknownEvent) EventType() EventType { return e.Type }

func (TextMessageStartEvent) sealed()   {}
func (TextMessageContentEvent) sealed() {}
func (TextMessageEndEvent) sealed()     {}
func (ToolCallStartEvent) sealed()      {}
func (ToolCallArgsEvent) sealed()       {}
func (ToolCallResultEvent) sealed()     {}
func (ToolCallEndEvent) sealed()        {}
func (MessagesSnapshotEvent) sealed()   {}
func (StateSnapshotEvent) sealed()      {}
func (RunStartedEvent) sealed()         {}
func (RunFinishedEvent) sealed()        {}
func (RunErrorEvent) sealed()           {}
func (UnknownEvent) sealed()            {}
