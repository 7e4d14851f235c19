package protocol

import (
	"encoding/json"
	"fmt"
)

// DecodeError reports a payload that could not be decoded into an Event.
// Type is empty when the payload was not a JSON object at all.
type DecodeError struct {
	Cause error
	Type  EventType
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("malformed event payload: %v", e.Cause)
	}
	return fmt.Sprintf("decode %s event: %v", e.Type, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// ParseEvent decodes one frame payload. Payloads with a missing or
// unrecognized type decode to UnknownEvent without error.
func ParseEvent(payload string) (Event, error) {
	data := []byte(payload)

	var base struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, &DecodeError{Cause: err}
	}

	switch base.Type {
	case EventTypeTextMessageStart:
		return decodeAs[TextMessageStartEvent](base.Type, data)
	case EventTypeTextMessageContent:
		return decodeAs[TextMessageContentEvent](base.Type, data)
	case EventTypeTextMessageEnd:
		return decodeAs[TextMessageEndEvent](base.Type, data)
	case EventTypeToolCallStart:
		return decodeAs[ToolCallStartEvent](base.Type, data)
	case EventTypeToolCallArgs:
		return decodeAs[ToolCallArgsEvent](base.Type, data)
	case EventTypeToolCallResult:
		return decodeAs[ToolCallResultEvent](base.Type, data)
	case EventTypeToolCallEnd:
		return decodeAs[ToolCallEndEvent](base.Type, data)
	case EventTypeMessagesSnapshot:
		return decodeAs[MessagesSnapshotEvent](base.Type, data)
	case EventTypeStateSnapshot:
		return decodeAs[StateSnapshotEvent](base.Type, data)
	case EventTypeRunStarted:
		return decodeAs[RunStartedEvent](base.Type, data)
	case EventTypeRunFinished:
		return decodeAs[RunFinishedEvent](base.Type, data)
	case EventTypeRunError:
		return decodeAs[RunErrorEvent](base.Type, data)
	default:
		return UnknownEvent{Type: base.Type, Raw: json.RawMessage(data)}, nil
	}
}

func decodeAs[T Event](typ EventType, data []byte) (Event, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, &DecodeError{Type: typ, Cause: err}
	}
	return e, nil
}
