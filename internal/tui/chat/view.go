package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samsaffron/gemchat/internal/conversation"
	"github.com/samsaffron/gemchat/internal/ui"
)

const timestampLayout = "15:04"

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.styles.Input.Width(max(m.width-2, 10)).Render(m.input.View()))
	return b.String()
}

func (m *Model) renderHeader() string {
	title := m.title
	if title == "" {
		title = "gemchat"
	}
	header := m.styles.Title.Render(title)
	if m.modelName == "" {
		return header
	}
	room := max(m.width-lipgloss.Width(header)-2, 10)
	return header + "  " + m.styles.Subtitle.Render(ui.Truncate(m.providerName+" · "+m.modelName, room))
}

func (m *Model) renderStatus() string {
	switch {
	case m.confirmingClear:
		return m.styles.Status.Render(m.styles.Bold.Render(clearPrompt))
	case m.notice != "":
		return m.styles.Status.Render(m.notice)
	case m.state.Busy:
		return m.styles.Status.Render(m.spinner.View() + " Streaming reply... Esc to stop")
	default:
		return m.styles.Status.Render("Enter send · Alt+Enter newline · Ctrl+K clear · /help · Ctrl+C quit")
	}
}

func (m *Model) contentWidth() int {
	if m.viewport.Width <= 4 {
		return 76
	}
	return m.viewport.Width - 2
}

func (m *Model) renderConversation() string {
	var b strings.Builder
	if m.showHelp {
		b.WriteString(ui.RenderMarkdown(helpText(), m.contentWidth()))
		b.WriteString("\n\n")
	}
	for i, e := range m.state.Entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderEntry(e))
	}
	return b.String()
}

func (m *Model) renderEntry(e conversation.Entry) string {
	var label string
	if e.Role == conversation.RoleUser {
		label = m.styles.UserLabel.Render("You")
	} else {
		label = m.styles.ModelLabel.Render(m.assistantName())
	}
	header := label + " " + m.styles.Timestamp.Render(e.Timestamp.Format(timestampLayout))
	if e.Streaming {
		header += " " + m.styles.Streaming.Render(ui.StreamingIcon)
	}
	if e.Failed {
		header += " " + m.styles.Error.Render(ui.FailIcon)
	}
	return header + "\n" + m.renderBody(e)
}

func (m *Model) renderBody(e conversation.Entry) string {
	width := m.contentWidth()
	switch {
	case e.Role == conversation.RoleUser:
		return lipgloss.NewStyle().Width(width).Render(e.Text)
	case e.Failed:
		return m.styles.Error.Width(width).Render(e.Text)
	case e.Text == "" && e.Streaming:
		return m.styles.Muted.Render("...")
	}

	if cached, ok := m.renderCache[e.ID]; ok && cached.text == e.Text && cached.width == width {
		return cached.out
	}
	out := ui.RenderMarkdown(e.Text, width)
	m.renderCache[e.ID] = renderedEntry{text: e.Text, width: width, out: out}
	return out
}

func (m *Model) assistantName() string {
	if m.providerName == "" || m.providerName == "gemini" {
		return "Gemini"
	}
	return "Assistant"
}
