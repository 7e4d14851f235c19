// Package render formats conversation state for the terminal.
package render

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/nikhilthomas300/myCompanion/chatmodel"
)

const defaultWidth = 80

// Styles
var (
	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	succeededStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	humanStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("13"))
)

// Options configures a Renderer.
type Options struct {
	// MarkdownStyle is "auto", "dark", "light" or "notty".
	MarkdownStyle string
	Width         int
	Markdown      bool
}

// Renderer turns chatmodel values into styled terminal text.
type Renderer struct {
	md    *glamour.TermRenderer
	width int
}

// New creates a renderer. A zero width means defaultWidth.
func New(opts Options) (*Renderer, error) {
	width := opts.Width
	if width <= 0 {
		width = defaultWidth
	}
	r := &Renderer{width: width}
	if !opts.Markdown {
		return r, nil
	}
	md, err := glamour.NewTermRenderer(
		glamourOption(opts.MarkdownStyle),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	r.md = md
	return r, nil
}

// glamourOption returns the glamour TermRendererOption for a style name.
func glamourOption(style string) glamour.TermRendererOption {
	switch style {
	case "dark", "light", "notty":
		return glamour.WithStandardStyle(style)
	default:
		return glamour.WithAutoStyle()
	}
}

// TerminalWidth returns the column count of f, or defaultWidth when f is
// not a terminal.
func TerminalWidth(f *os.File) int {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return defaultWidth
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// Width returns the wrap width.
func (r *Renderer) Width() int {
	return r.width
}

// Truncate shortens s to at most width display cells, marking the cut.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// Transcript renders the whole conversation followed by tools, artifacts
// and any error.
func (r *Renderer) Transcript(st chatmodel.State) string {
	var b strings.Builder
	for _, m := range st.Messages {
		b.WriteString(r.Message(m))
		b.WriteString("\n")
	}
	for _, inv := range st.ToolInvocations {
		b.WriteString(r.Tool(inv))
		b.WriteString("\n")
	}
	for _, a := range st.Artifacts {
		b.WriteString(r.Artifact(a))
		b.WriteString("\n")
	}
	if st.Error != "" {
		b.WriteString(r.Error(st.Error))
		b.WriteString("\n")
	}
	return b.String()
}

// Message renders one message with a role label.
func (r *Renderer) Message(m chatmodel.Message) string {
	switch m.Role {
	case chatmodel.RoleUser:
		return userStyle.Render("you") + " " + m.Content
	case chatmodel.RoleAssistant:
		return assistantStyle.Render("agent") + " " + r.markdown(m.Content)
	case chatmodel.RoleTool:
		return dimStyle.Render(fmt.Sprintf("tool %s: %s", m.ToolCallID, Truncate(m.Content, r.width-8)))
	default:
		return dimStyle.Render(string(m.Role) + ": " + m.Content)
	}
}

func (r *Renderer) markdown(text string) string {
	if r.md == nil || text == "" {
		return text
	}
	out, err := r.md.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// StatusLabel renders a tool status with its marker.
func StatusLabel(s chatmodel.ToolStatus) string {
	switch s {
	case chatmodel.ToolStatusRunning:
		return runningStyle.Render("… running")
	case chatmodel.ToolStatusSucceeded:
		return succeededStyle.Render("✓ succeeded")
	case chatmodel.ToolStatusFailed:
		return failedStyle.Render("✗ failed")
	default:
		return dimStyle.Render("· " + string(s))
	}
}

// Tool renders an invocation: name, status, argument preview and the
// output component it should be shown with.
func (r *Renderer) Tool(inv chatmodel.ToolInvocation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚙ %s %s", inv.Name, StatusLabel(inv.Status))
	if len(inv.Args) > 0 {
		b.WriteString("\n  args  ")
		b.WriteString(dimStyle.Render(Truncate(compactJSON(inv.Args), r.width-8)))
	}
	if inv.Output != nil {
		component := inv.Output.ComponentID
		if component == "" {
			component = "(generic)"
		}
		b.WriteString("\n  view  ")
		b.WriteString(component)
		if len(inv.Output.Props) > 0 {
			b.WriteString(" ")
			b.WriteString(dimStyle.Render(Truncate(compactJSON(inv.Output.Props), r.width-10-runewidth.StringWidth(component))))
		}
	}
	if inv.RequiresHuman {
		b.WriteString("\n  ")
		b.WriteString(humanStyle.Render("needs human review"))
	}
	return b.String()
}

// Artifact renders an artifact as a one-line preview.
func (r *Renderer) Artifact(a chatmodel.Artifact) string {
	var preview string
	switch p := a.Payload.(type) {
	case string:
		preview = p
	default:
		preview = compactJSON(p)
	}
	head := fmt.Sprintf("📎 %s [%s] ", a.ID, a.Kind)
	return head + dimStyle.Render(Truncate(preview, r.width-runewidth.StringWidth(head)))
}

// Error renders an error line.
func (r *Renderer) Error(msg string) string {
	return errorStyle.Render("error: " + msg)
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
