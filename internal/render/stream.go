package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/nikhilthomas300/myCompanion/chatmodel"
)

// Stream writes the part of each new state that has not been shown yet:
// assistant text as it grows and tool status transitions. It is driven
// from a single goroutine, typically a store observer.
type Stream struct {
	w       io.Writer
	r       *Renderer
	shown   map[string]string
	tools   map[string]chatmodel.ToolStatus
	current string
}

// NewStream creates a stream writer. Messages and tools already present
// in baseline are treated as shown.
func NewStream(w io.Writer, r *Renderer, baseline chatmodel.State) *Stream {
	s := &Stream{
		w:     w,
		r:     r,
		shown: make(map[string]string),
		tools: make(map[string]chatmodel.ToolStatus),
	}
	for _, m := range baseline.Messages {
		s.shown[m.ID] = m.Content
	}
	for _, inv := range baseline.ToolInvocations {
		s.tools[inv.ID] = inv.Status
	}
	return s
}

// Update writes what changed since the last call.
func (s *Stream) Update(st chatmodel.State) {
	for _, m := range st.Messages {
		if m.Role != chatmodel.RoleAssistant {
			s.shown[m.ID] = m.Content
			continue
		}
		prev, seen := s.shown[m.ID]
		switch {
		case seen && prev == m.Content:
			continue
		case seen && s.current == m.ID && strings.HasPrefix(m.Content, prev):
			fmt.Fprint(s.w, m.Content[len(prev):])
		default:
			s.startLine(m.ID)
			fmt.Fprint(s.w, assistantStyle.Render("agent")+" "+m.Content)
		}
		s.shown[m.ID] = m.Content
	}

	for _, inv := range st.ToolInvocations {
		if prev, ok := s.tools[inv.ID]; ok && prev == inv.Status {
			continue
		}
		s.tools[inv.ID] = inv.Status
		s.startLine("")
		fmt.Fprintf(s.w, "⚙ %s %s\n", inv.Name, StatusLabel(inv.Status))
	}
}

// Finish ends any partially written line.
func (s *Stream) Finish() {
	s.startLine("")
}

func (s *Stream) startLine(id string) {
	if s.current != "" {
		fmt.Fprintln(s.w)
	}
	s.current = id
}
