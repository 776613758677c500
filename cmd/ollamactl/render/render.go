// Package render formats model output for the terminal.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/papercomputeco/ollama-go/pkg/llm"
)

const defaultWidth = 80

// Styles are the lipgloss styles used for role prompts and annotations.
type Styles struct {
	User      lipgloss.Style
	Assistant lipgloss.Style
	Tool      lipgloss.Style
	Thinking  lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
}

// DefaultStyles returns the ANSI palette ollamactl uses.
func DefaultStyles() Styles {
	return Styles{
		User:      lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		Assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		Tool:      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Thinking:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Faint(true),
		Muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Faint(true),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// Renderer writes styled output. Markdown rendering is only enabled when out
// is a terminal; piped output stays plain.
type Renderer struct {
	styles   Styles
	markdown bool
	width    int
}

// New returns a Renderer for out. wantMarkdown asks for glamour rendering of
// complete answers.
func New(out io.Writer, wantMarkdown bool) *Renderer {
	r := &Renderer{styles: DefaultStyles(), width: defaultWidth}

	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return r
	}
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
		r.width = w
	}
	r.markdown = wantMarkdown
	return r
}

// Markdown reports whether answers are rendered as markdown. When true the
// answer should be buffered and passed to Answer once complete instead of
// being streamed.
func (r *Renderer) Markdown() bool {
	return r.markdown
}

// Prompt returns the styled label for role, e.g. "user> ".
func (r *Renderer) Prompt(role llm.Role) string {
	style := r.styles.Muted
	switch role {
	case llm.RoleUser:
		style = r.styles.User
	case llm.RoleAssistant:
		style = r.styles.Assistant
	case llm.RoleTool:
		style = r.styles.Tool
	}
	return style.Render(string(role)+">") + " "
}

// Answer returns text, rendered as markdown when enabled.
func (r *Renderer) Answer(text string) (string, error) {
	if !r.markdown {
		return text, nil
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(r.width),
	)
	if err != nil {
		return "", fmt.Errorf("could not create markdown renderer: %w", err)
	}
	out, err := tr.Render(text)
	if err != nil {
		return "", fmt.Errorf("could not render markdown: %w", err)
	}
	return strings.TrimRight(out, "\n") + "\n", nil
}

// Thinking styles a reasoning trace fragment.
func (r *Renderer) Thinking(text string) string {
	return r.styles.Thinking.Render(text)
}

// ToolCall describes a tool invocation requested by the model.
func (r *Renderer) ToolCall(call llm.ToolCall) string {
	args := string(call.Function.Arguments)
	if args == "" {
		args = "{}"
	}
	return r.styles.Tool.Render(fmt.Sprintf("-> %s(%s)", call.Function.Name, args))
}

// Stats summarizes the metrics of a finished response.
func (r *Renderer) Stats(m llm.Metrics) string {
	if m.EvalCount == 0 && m.TotalDuration == 0 {
		return ""
	}
	return r.styles.Muted.Render(fmt.Sprintf("%d tokens, %.1f tok/s, %s total",
		m.EvalCount, m.TokensPerSecond(), m.TotalDuration.Round(time.Millisecond)))
}

// Error styles an error message.
func (r *Renderer) Error(msg string) string {
	return r.styles.Error.Render("error: " + msg)
}

// Muted styles secondary text such as hints.
func (r *Renderer) Muted(text string) string {
	return r.styles.Muted.Render(text)
}
