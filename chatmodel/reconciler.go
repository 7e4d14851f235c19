package chatmodel

import (
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/tidwall/gjson"

	"github.com/nikhilthomas300/myCompanion/internal/logging"
	"github.com/nikhilthomas300/myCompanion/protocol"
)

// DefaultRunError is the error text used when a RUN_ERROR carries no message.
const DefaultRunError = "An error occurred"

// RunBuffers holds the accumulators of a single run: message text keyed by
// message ID and raw tool-argument JSON keyed by tool-call ID. A fresh value
// is created per run and never reused.
type RunBuffers struct {
	text      map[string]string
	finalized map[string]bool
	args      map[string]string
}

// NewRunBuffers returns empty accumulators.
func NewRunBuffers() *RunBuffers {
	return &RunBuffers{
		text:      make(map[string]string),
		finalized: make(map[string]bool),
		args:      make(map[string]string),
	}
}

// Text returns the accumulated text for a message.
func (b *RunBuffers) Text(messageID string) (string, bool) {
	s, ok := b.text[messageID]
	return s, ok
}

// Args returns the raw accumulated argument JSON for a tool call.
func (b *RunBuffers) Args(toolCallID string) (string, bool) {
	s, ok := b.args[toolCallID]
	return s, ok
}

// Finalized reports whether a message has seen its end event in this run.
func (b *RunBuffers) Finalized(messageID string) bool {
	return b.finalized[messageID]
}

// Reconciler folds protocol events into a State. It carries no state of
// its own besides the logger; per-run data lives in RunBuffers.
type Reconciler struct {
	logger *slog.Logger
}

// NewReconciler creates a Reconciler. A nil logger discards diagnostics.
func NewReconciler(logger *slog.Logger) *Reconciler {
	return &Reconciler{logger: logging.OrNop(logger)}
}

// Apply returns the state that results from applying ev to state. Events
// must be applied in arrival order. The state argument is not modified;
// buf is updated in place.
func (r *Reconciler) Apply(state State, buf *RunBuffers, ev protocol.Event) State {
	switch e := ev.(type) {
	case protocol.TextMessageStartEvent:
		return r.messageStart(state, buf, e)
	case protocol.TextMessageContentEvent:
		return r.messageContent(state, buf, e)
	case protocol.TextMessageEndEvent:
		return r.messageEnd(state, buf, e)
	case protocol.ToolCallStartEvent:
		return r.toolStart(state, buf, e)
	case protocol.ToolCallArgsEvent:
		return r.toolArgs(state, buf, e)
	case protocol.ToolCallResultEvent:
		return r.toolResult(state, e)
	case protocol.ToolCallEndEvent:
		return r.toolEnd(state, e)
	case protocol.MessagesSnapshotEvent:
		return r.messagesSnapshot(state, buf, e)
	case protocol.StateSnapshotEvent:
		state.AgentState = slices.Clone(e.Snapshot)
		return state
	case protocol.RunStartedEvent:
		if e.RunID != "" {
			state.RunID = e.RunID
		}
		return state
	case protocol.RunFinishedEvent:
		state.Loading = false
		return state
	case protocol.RunErrorEvent:
		state.Loading = false
		state.Error = e.Message
		if state.Error == "" {
			state.Error = DefaultRunError
		}
		return r.FailRunning(state)
	case protocol.UnknownEvent:
		r.logger.Debug("ignoring unknown event", "type", e.Type)
		return state
	default:
		return state
	}
}

// FailRunning marks every still-running invocation as failed. Terminal
// invocations are left alone.
func (r *Reconciler) FailRunning(state State) State {
	var tools []ToolInvocation
	for i, inv := range state.ToolInvocations {
		if inv.Status != ToolStatusRunning {
			continue
		}
		if tools == nil {
			tools = slices.Clone(state.ToolInvocations)
		}
		tools[i].Status = ToolStatusFailed
	}
	if tools != nil {
		state.ToolInvocations = tools
	}
	return state
}

// --- messages ---------------------------------------------------------------

func (r *Reconciler) messageStart(state State, buf *RunBuffers, e protocol.TextMessageStartEvent) State {
	role := RoleAssistant
	if e.Role != "" {
		role = RoleFromWire(e.Role)
	}
	buf.text[e.MessageID] = ""
	delete(buf.finalized, e.MessageID)
	return upsertMessage(state, e.MessageID, role, "", true)
}

func (r *Reconciler) messageContent(state State, buf *RunBuffers, e protocol.TextMessageContentEvent) State {
	if buf.finalized[e.MessageID] {
		r.logger.Debug("ignoring delta for finalized message", "messageId", e.MessageID)
		return state
	}
	text := buf.text[e.MessageID] + e.Delta
	buf.text[e.MessageID] = text
	return upsertMessage(state, e.MessageID, RoleAssistant, text, false)
}

func (r *Reconciler) messageEnd(state State, buf *RunBuffers, e protocol.TextMessageEndEvent) State {
	if buf.finalized[e.MessageID] {
		return state
	}
	buf.finalized[e.MessageID] = true
	text, ok := buf.text[e.MessageID]
	if !ok {
		return state
	}
	return upsertMessage(state, e.MessageID, RoleAssistant, text, false)
}

// upsertMessage sets the content of the message with the given ID, keeping
// its position, or appends a new message with role. An existing message's
// role is only replaced when setRole is true.
func upsertMessage(state State, id string, role Role, content string, setRole bool) State {
	msgs := slices.Clone(state.Messages)
	if i := state.messageIndex(id); i >= 0 {
		msgs[i].Content = content
		if setRole {
			msgs[i].Role = role
		}
	} else {
		msgs = append(msgs, Message{ID: id, Role: role, Content: content})
	}
	state.Messages = msgs
	return state
}

func (r *Reconciler) messagesSnapshot(state State, buf *RunBuffers, e protocol.MessagesSnapshotEvent) State {
	msgs := make([]Message, 0, len(e.Messages))
	present := make(map[string]bool, len(e.Messages))
	for _, wm := range e.Messages {
		if present[wm.ID] {
			r.logger.Warn("duplicate message id in snapshot", "messageId", wm.ID)
			continue
		}
		present[wm.ID] = true
		m := Message{
			ID:      wm.ID,
			Role:    RoleFromWire(wm.Role),
			Content: wm.Content.Text(),
		}
		if m.Role == RoleTool {
			m.ToolCallID = wm.ToolCallID
		}
		if wm.Name != "" {
			m.Metadata = map[string]string{"name": wm.Name}
		}
		msgs = append(msgs, m)
	}

	for id := range buf.text {
		if !present[id] {
			delete(buf.text, id)
		}
	}
	for id := range buf.finalized {
		if !present[id] {
			delete(buf.finalized, id)
		}
	}
	for _, m := range msgs {
		if _, tracked := buf.text[m.ID]; tracked {
			buf.text[m.ID] = m.Content
		}
	}

	state.Messages = msgs
	return state
}

// --- tools -------------------------------------------------------------------

func (r *Reconciler) toolStart(state State, buf *RunBuffers, e protocol.ToolCallStartEvent) State {
	if state.toolIndex(e.ToolCallID) >= 0 {
		r.logger.Debug("ignoring duplicate tool call start", "toolCallId", e.ToolCallID)
		return state
	}
	buf.args[e.ToolCallID] = ""
	state.ToolInvocations = append(slices.Clone(state.ToolInvocations), ToolInvocation{
		ID:     e.ToolCallID,
		Name:   e.ToolCallName,
		Args:   map[string]any{},
		Status: ToolStatusRunning,
	})
	return state
}

func (r *Reconciler) toolArgs(state State, buf *RunBuffers, e protocol.ToolCallArgsEvent) State {
	i := state.toolIndex(e.ToolCallID)
	if i < 0 {
		r.logger.Debug("ignoring args for unknown tool call", "toolCallId", e.ToolCallID)
		return state
	}
	if state.ToolInvocations[i].Status.IsTerminal() {
		return state
	}
	raw := buf.args[e.ToolCallID] + e.Delta
	buf.args[e.ToolCallID] = raw

	args, ok := parseObject(raw)
	if !ok {
		return state
	}
	return updateTool(state, i, func(inv *ToolInvocation) {
		inv.Args = args
	})
}

func (r *Reconciler) toolResult(state State, e protocol.ToolCallResultEvent) State {
	i := state.toolIndex(e.ToolCallID)
	if i < 0 {
		r.logger.Debug("ignoring result for unknown tool call", "toolCallId", e.ToolCallID)
		return state
	}
	content := e.Content
	if content == "" {
		content = "{}"
	}
	if !gjson.Valid(content) {
		r.logger.Warn("failed to parse tool call result", "toolCallId", e.ToolCallID, "content", content)
		return state
	}
	res := gjson.Parse(content)
	if !res.IsObject() {
		r.logger.Warn("tool call result is not an object", "toolCallId", e.ToolCallID)
		return state
	}

	out := &ToolOutput{ComponentID: firstString(res, "componentId", "component_id"), Props: map[string]any{}}
	if props := res.Get("props"); props.IsObject() {
		if m, ok := props.Value().(map[string]any); ok {
			out.Props = m
		}
	}
	summary := res.Get("summary")
	requiresHuman := res.Get("requiresHuman")
	if !requiresHuman.Exists() {
		requiresHuman = res.Get("requires_human")
	}

	state = updateTool(state, i, func(inv *ToolInvocation) {
		inv.Output = out
		if summary.Type == gjson.String {
			inv.Args["summary"] = summary.String()
		}
		if requiresHuman.Exists() {
			inv.RequiresHuman = requiresHuman.Bool()
		}
		if inv.Status == ToolStatusRunning {
			inv.Status = ToolStatusSucceeded
		}
	})

	if arts := res.Get("artifacts"); arts.IsArray() {
		state.Artifacts = parseArtifacts(arts)
	}
	return state
}

func (r *Reconciler) toolEnd(state State, e protocol.ToolCallEndEvent) State {
	i := state.toolIndex(e.ToolCallID)
	if i < 0 || state.ToolInvocations[i].Status != ToolStatusRunning {
		return state
	}
	return updateTool(state, i, func(inv *ToolInvocation) {
		inv.Status = ToolStatusSucceeded
	})
}

// updateTool applies fn to a copy of the invocation at index i. fn may
// write to the copy's Args map, which is cloned first.
func updateTool(state State, i int, fn func(*ToolInvocation)) State {
	tools := slices.Clone(state.ToolInvocations)
	inv := tools[i]
	inv.Args = deepCopyMap(inv.Args)
	if inv.Args == nil {
		inv.Args = map[string]any{}
	}
	fn(&inv)
	tools[i] = inv
	state.ToolInvocations = tools
	return state
}

// parseObject decodes raw when it is a complete JSON object.
func parseObject(raw string) (map[string]any, bool) {
	if !gjson.Valid(raw) {
		return nil, false
	}
	res := gjson.Parse(raw)
	if !res.IsObject() {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(res.Raw), &m); err != nil {
		return nil, false
	}
	return m, true
}

func firstString(res gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := res.Get(k); v.Exists() && v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}

func parseArtifacts(arts gjson.Result) []Artifact {
	out := []Artifact{}
	arts.ForEach(func(_, a gjson.Result) bool {
		if !a.IsObject() {
			return true
		}
		out = append(out, Artifact{
			ID:      a.Get("id").String(),
			Kind:    ArtifactKind(a.Get("kind").String()),
			Payload: a.Get("payload").Value(),
		})
		return true
	})
	return out
}
