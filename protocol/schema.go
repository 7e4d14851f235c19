package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// eventPrototypes lists one zero value per known event type, in wire order.
var eventPrototypes = []Event{
	TextMessageStartEvent{},
	TextMessageContentEvent{},
	TextMessageEndEvent{},
	ToolCallStartEvent{},
	ToolCallArgsEvent{},
	ToolCallResultEvent{},
	ToolCallEndEvent{},
	MessagesSnapshotEvent{},
	StateSnapshotEvent{},
	RunStartedEvent{},
	RunFinishedEvent{},
	RunErrorEvent{},
}

// KnownEventTypes returns the event types ParseEvent decodes into a
// dedicated struct.
func KnownEventTypes() []EventType {
	types := make([]EventType, len(eventPrototypes))
	for i, e := range eventPrototypes {
		types[i] = e.EventType()
	}
	return types
}

// Schema returns a JSON Schema describing every known event payload as
// one branch of a oneOf, discriminated by a constant "type".
func Schema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	root := &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "AG-UI event",
		Description: "A single event carried in the data payload of one stream frame.",
	}
	for _, proto := range eventPrototypes {
		s := reflector.Reflect(proto)
		s.Version = ""
		s.Title = string(proto.EventType())
		if s.Properties != nil {
			if typ, ok := s.Properties.Get("type"); ok {
				typ.Const = string(proto.EventType())
			}
		}
		root.OneOf = append(root.OneOf, s)
	}
	return root
}

// SchemaJSON renders Schema as indented JSON.
func SchemaJSON() ([]byte, error) {
	b, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal event schema: %w", err)
	}
	return b, nil
}
