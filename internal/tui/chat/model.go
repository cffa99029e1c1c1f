package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samsaffron/gemchat/internal/conversation"
	"github.com/samsaffron/gemchat/internal/ui"
)

const (
	busyNotice  = "A response is already streaming. Press Esc to stop it."
	clearPrompt = "Clear the conversation? (y/n)"
	inputLimit  = 8192
	inputHeight = 3
)

// ChangeMsg carries one conversation change into the program.
type ChangeMsg struct {
	Change conversation.Change
}

// NoticeMsg shows a transient message in the status line.
type NoticeMsg string

type sendResultMsg struct {
	err error
}

type noticesClosedMsg struct{}

// Options configures a chat Model.
type Options struct {
	Backend  Backend
	Provider string
	Model    string
	Title    string
	// Initial is the state at startup; later state arrives as ChangeMsg.
	Initial conversation.State
	// Notices, when set, is drained into the status line.
	Notices <-chan string
	Styles  *ui.Styles
	Context context.Context
}

// Model is the bubbletea model for the interactive chat.
// It reads state only from ChangeMsg and calls the backend from commands, never from Update.
type Model struct {
	ctx     context.Context
	backend Backend
	notices <-chan string

	styles   *ui.Styles
	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	title        string
	providerName string
	modelName    string

	state           conversation.State
	width           int
	height          int
	ready           bool
	confirmingClear bool
	showHelp        bool
	notice          string
	quitting        bool

	renderCache map[string]renderedEntry
	perf        *streamPerfTelemetry
}

type renderedEntry struct {
	text  string
	width int
	out   string
}

// New creates a chat Model.
func New(opts Options) *Model {
	styles := opts.Styles
	if styles == nil {
		styles = ui.DefaultStyles()
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	// Enter is handled by the model; Alt+Enter and Ctrl+J insert a newline.
	ta := textarea.New()
	ta.Prompt = "❯ "
	ta.Placeholder = "Type a message, or /help"
	ta.CharLimit = inputLimit
	ta.ShowLineNumbers = false
	ta.SetHeight(inputHeight)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = styles.Streaming

	return &Model{
		ctx:          ctx,
		backend:      opts.Backend,
		notices:      opts.Notices,
		styles:       styles,
		input:        ta,
		viewport:     viewport.New(80, 20),
		spinner:      sp,
		title:        opts.Title,
		providerName: opts.Provider,
		modelName:    opts.Model,
		state:        opts.Initial,
		renderCache:  make(map[string]renderedEntry),
		perf:         newStreamPerfTelemetryFromEnv(),
	}
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink}
	if m.notices != nil {
		cmds = append(cmds, waitForNotice(m.notices))
	}
	if m.state.Busy {
		cmds = append(cmds, m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

func waitForNotice(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return noticesClosedMsg{}
		}
		return NoticeMsg(msg)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case ChangeMsg:
		return m.handleChange(msg.Change)

	case sendResultMsg:
		if conversation.IsRejection(msg.err) {
			m.notice = rejectionNotice(msg.err)
		}
		return m, nil

	case NoticeMsg:
		m.notice = string(msg)
		return m, waitForNotice(m.notices)

	case noticesClosedMsg:
		m.notices = nil
		return m, nil

	case spinner.TickMsg:
		if !m.state.Busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmingClear {
		m.confirmingClear = false
		switch msg.String() {
		case "y", "Y":
			m.notice = ""
			return m, m.resetCmd()
		default:
			m.notice = ""
			return m, nil
		}
	}

	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "esc":
		return m.interrupt()
	case "ctrl+k":
		return m.askClear()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case "enter":
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if strings.HasPrefix(text, "/") {
		return m.ExecuteCommand(text)
	}
	if m.state.Busy {
		m.notice = busyNotice
		return m, nil
	}
	m.input.Reset()
	m.notice = ""
	m.showHelp = false
	return m, m.sendCmd(text)
}

func (m *Model) askClear() (tea.Model, tea.Cmd) {
	m.confirmingClear = true
	m.notice = clearPrompt
	return m, nil
}

func (m *Model) interrupt() (tea.Model, tea.Cmd) {
	if !m.state.Busy {
		return m, nil
	}
	m.notice = "Stopping..."
	backend := m.backend
	return m, func() tea.Msg {
		backend.Interrupt()
		return nil
	}
}

func (m *Model) sendCmd(text string) tea.Cmd {
	backend, ctx := m.backend, m.ctx
	return func() tea.Msg {
		return sendResultMsg{err: backend.Send(ctx, text)}
	}
}

func (m *Model) resetCmd() tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		backend.Reset()
		return nil
	}
}

func (m *Model) handleChange(c conversation.Change) (tea.Model, tea.Cmd) {
	wasBusy := m.state.Busy
	m.state = c.State

	now := time.Now()
	switch c.Kind {
	case conversation.ChangeAppended:
		if c.Entry.Streaming {
			m.perf.StartReply(c.Entry.ID, now)
		}
	case conversation.ChangeUpdated:
		m.perf.RecordUpdate(len(c.Entry.Text), now)
		if !c.Entry.Streaming {
			m.perf.EmitSummaryIfActive(now)
		}
	case conversation.ChangeReset:
		m.renderCache = make(map[string]renderedEntry)
		m.perf.EmitSummaryIfActive(now)
	}

	if wasBusy && !m.state.Busy && m.notice == "Stopping..." {
		m.notice = ""
	}

	m.refreshViewport()

	if !wasBusy && m.state.Busy {
		return m, m.spinner.Tick
	}
	return m, nil
}

func rejectionNotice(err error) string {
	if errors.Is(err, conversation.ErrBusy) {
		return busyNotice
	}
	return "Message is empty."
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.input.SetWidth(max(width-4, 10))
	m.viewport.Width = width
	m.viewport.Height = max(height-m.chromeHeight(), 1)
	m.ready = true
	m.refreshViewport()
}

// chromeHeight is the number of rows used by the header, status line and bordered input box.
func (m *Model) chromeHeight() int {
	return 1 + 1 + inputHeight + 2
}

func (m *Model) refreshViewport() {
	atBottom := m.viewport.AtBottom()
	start := time.Now()
	m.viewport.SetContent(m.renderConversation())
	m.perf.RecordRender(time.Since(start))
	if atBottom || m.state.Busy {
		m.viewport.GotoBottom()
	}
}
