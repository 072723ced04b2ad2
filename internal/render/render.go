// Package render draws an agent snapshot for the terminal.
package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"realtime-voice-agent/backend/internal/agent"
	"realtime-voice-agent/backend/internal/transcript"
)

// Placeholder is shown while the transcript is empty and there is no error.
const Placeholder = "No conversation yet. Connect and start talking."

// Role labels.
const (
	LabelUser      = "You"
	LabelAssistant = "Agent"
)

// Theme defines the color scheme.
type Theme struct {
	Primary lipgloss.Color
	User    lipgloss.Color
	Dim     lipgloss.Color
	Error   lipgloss.Color
}

// DefaultTheme is the default theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	User:    lipgloss.Color("#58a6ff"),
	Dim:     lipgloss.Color("#6e7681"),
	Error:   lipgloss.Color("#ff5f5f"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title     lipgloss.Style
	State     lipgloss.Style
	Status    lipgloss.Style
	Error     lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Body      lipgloss.Style
	Dim       lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		State:     lipgloss.NewStyle().Bold(true),
		Status:    lipgloss.NewStyle().Foreground(t.Dim),
		Error:     lipgloss.NewStyle().Bold(true).Foreground(t.Error),
		User:      lipgloss.NewStyle().Bold(true).Foreground(t.User),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Body:      lipgloss.NewStyle().PaddingLeft(2),
		Dim:       lipgloss.NewStyle().Foreground(t.Dim).Italic(true),
	}
}

// Renderer renders snapshots at a fixed width.
type Renderer struct {
	Styles Styles
	Title  string
	Width  int
}

// New creates a renderer with the default theme. width <= 0 disables
// wrapping.
func New(title string, width int) *Renderer {
	return &Renderer{Styles: NewStyles(DefaultTheme), Title: title, Width: width}
}

// Render draws the header, the error line and the message list.
func (r *Renderer) Render(snap agent.Snapshot) string {
	var b strings.Builder

	header := r.Styles.Title.Render(r.Title) + " " + r.Styles.State.Render("["+snap.State.String()+"]")
	if snap.Status != "" {
		header += " " + r.Styles.Status.Render(snap.Status)
	}
	b.WriteString(header)
	b.WriteString("\n")

	if snap.Error != "" {
		b.WriteString(r.Styles.Error.Render("error: " + snap.Error))
		b.WriteString("\n")
	}

	if len(snap.Messages) == 0 {
		if snap.Error == "" {
			b.WriteString(r.Styles.Dim.Render(Placeholder))
			b.WriteString("\n")
		}
		return b.String()
	}

	for _, m := range snap.Messages {
		b.WriteString("\n")
		b.WriteString(r.label(m))
		b.WriteString("\n")
		b.WriteString(r.body(m.Text))
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Renderer) label(m transcript.Message) string {
	var label string
	if m.Role == transcript.RoleUser {
		label = r.Styles.User.Render(LabelUser)
	} else {
		label = r.Styles.Assistant.Render(LabelAssistant)
	}
	if m.IsStreaming {
		label += " " + r.Styles.Dim.Render("…")
	}
	return label
}

func (r *Renderer) body(text string) string {
	style := r.Styles.Body
	if r.Width > 4 {
		style = style.Width(r.Width)
	}
	return style.Render(text)
}
