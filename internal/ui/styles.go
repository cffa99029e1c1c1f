package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// Color palette - consistent across all TUI components
var (
	Green  = lipgloss.Color("10") // success, model label
	Red    = lipgloss.Color("9")  // errors, failed replies
	Grey   = lipgloss.Color("8")  // muted text, timestamps
	Blue   = lipgloss.Color("4")  // user label, borders
	White  = lipgloss.Color("15") // header text
	Yellow = lipgloss.Color("11") // streaming indicator
)

// Status indicators
const (
	SuccessIcon   = "✓"
	FailIcon      = "✗"
	StreamingIcon = "●"
)

// Styles returns styled text helpers bound to a renderer
type Styles struct {
	renderer *lipgloss.Renderer

	// Text styles
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
	Bold      lipgloss.Style
	Streaming lipgloss.Style

	// Conversation styles
	UserLabel  lipgloss.Style
	ModelLabel lipgloss.Style
	Timestamp  lipgloss.Style
	Input      lipgloss.Style
	Status     lipgloss.Style
}

// NewStyles creates a new Styles instance for the given output
func NewStyles(output io.Writer) *Styles {
	r := lipgloss.NewRenderer(output)

	return &Styles{
		renderer: r,

		Title: r.NewStyle().
			Bold(true).
			Foreground(White),

		Subtitle: r.NewStyle().
			Foreground(Grey),

		Success: r.NewStyle().
			Foreground(Green),

		Error: r.NewStyle().
			Foreground(Red),

		Muted: r.NewStyle().
			Foreground(Grey),

		Bold: r.NewStyle().
			Bold(true),

		Streaming: r.NewStyle().
			Foreground(Yellow),

		UserLabel: r.NewStyle().
			Bold(true).
			Foreground(Blue),

		ModelLabel: r.NewStyle().
			Bold(true).
			Foreground(Green),

		Timestamp: r.NewStyle().
			Foreground(Grey),

		Input: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Blue).
			Padding(0, 1),

		Status: r.NewStyle().
			Foreground(Grey).
			Padding(0, 1),
	}
}

// DefaultStyles returns styles for stderr (default TUI output)
func DefaultStyles() *Styles {
	return NewStyles(os.Stderr)
}

// FormatResult returns a styled success/fail result
func (s *Styles) FormatResult(success bool, msg string) string {
	if success {
		return s.Success.Render(SuccessIcon+" ") + msg
	}
	return s.Error.Render(FailIcon+" ") + msg
}

// Truncate shortens a string to maxWidth display cells with ellipsis
func Truncate(s string, maxWidth int) string {
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}
