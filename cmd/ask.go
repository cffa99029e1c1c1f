package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/samsaffron/gemchat/internal/conversation"
	"github.com/samsaffron/gemchat/internal/exitcode"
	"github.com/samsaffron/gemchat/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var askText bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question and stream the answer",
	Long: `Ask the model one question and stream the reply.

On a terminal the reply is rendered as markdown; when piped it is written as
plain text.

Examples:
  gemchat ask "What is the capital of France?"
  gemchat ask "How do I reverse a string in Go?" --text
  gemchat ask --provider openai "Explain TCP vs UDP" | less`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVarP(&askText, "text", "t", false, "Output plain text instead of rendered markdown")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg, err := loadConfigWithSetup()
	if err != nil {
		return err
	}
	applyProviderOverrides(cfg, providerFlag)
	core, err := newChatCore(cfg)
	if err != nil {
		return err
	}

	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	var res askResult
	if !askText && isTTY {
		res, err = streamWithBubbleTea(ctx, core.Store, question)
	} else {
		res, err = streamPlainText(ctx, core.Store, question, os.Stdout)
	}
	if err != nil {
		return err
	}
	return res.outcome()
}

type askResult struct {
	Reply     conversation.Entry
	Cancelled bool
}

// outcome maps the final model entry to the command result.
func (r askResult) outcome() error {
	switch {
	case !r.Reply.Failed:
		return nil
	case r.Cancelled:
		return exitcode.Cancel()
	default:
		return exitcode.Failed("reply failed")
	}
}

// lastReply returns the newest model entry.
func lastReply(s conversation.State) conversation.Entry {
	for i := len(s.Entries) - 1; i >= 0; i-- {
		if s.Entries[i].Role == conversation.RoleModel {
			return s.Entries[i]
		}
	}
	return conversation.Entry{}
}

// streamPlainText writes the reply to w as it arrives. Escape sequences in the
// reply are stripped so they never reach a pipe.
func streamPlainText(ctx context.Context, store *conversation.Store, question string, w io.Writer) (askResult, error) {
	var (
		mu      sync.Mutex
		written int
		replyID string
	)
	unsubscribe := store.Subscribe(func(c conversation.Change) {
		if c.Entry.Role != conversation.RoleModel || c.Entry.Failed {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch c.Kind {
		case conversation.ChangeAppended:
			if c.Entry.Streaming {
				replyID = c.Entry.ID
			}
		case conversation.ChangeUpdated:
			if c.Entry.ID != replyID || len(c.Entry.Text) <= written {
				return
			}
			fmt.Fprint(w, ansi.Strip(c.Entry.Text[written:]))
			written = len(c.Entry.Text)
		}
	})
	defer unsubscribe()

	if err := store.Send(ctx, question); err != nil {
		return askResult{}, err
	}

	res := askResult{Reply: lastReply(store.Snapshot()), Cancelled: ctx.Err() != nil}
	mu.Lock()
	defer mu.Unlock()
	if res.Reply.Failed {
		if written > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(os.Stderr, res.Reply.Text)
		return res, nil
	}
	fmt.Fprintln(w)
	return res, nil
}

// askModel is the bubbletea model for streaming with glamour
type askModel struct {
	spinner spinner.Model
	styles  *ui.Styles
	reply   conversation.Entry
	width   int
	done    bool
	cancel  func()
}

type askUpdateMsg conversation.Entry

type askDoneMsg struct{}

func newAskModel(styles *ui.Styles, cancel func()) askModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Streaming
	return askModel{spinner: s, styles: styles, width: 80, cancel: cancel}
}

func (m askModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m askModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "esc" {
			cancel := m.cancel
			return m, func() tea.Msg {
				cancel()
				return nil
			}
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case askUpdateMsg:
		m.reply = conversation.Entry(msg)
	case askDoneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m askModel) View() string {
	switch {
	case m.reply.Failed:
		return m.styles.Error.Render(m.reply.Text) + "\n"
	case m.reply.Text == "" && !m.done:
		return m.spinner.View() + " Thinking..."
	case m.reply.Text == "":
		return ""
	}
	return ui.RenderMarkdown(m.reply.Text, max(m.width-2, 20)) + "\n"
}

// streamWithBubbleTea renders the reply as markdown while it streams.
func streamWithBubbleTea(ctx context.Context, store *conversation.Store, question string) (askResult, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return streamPlainText(ctx, store, question, os.Stdout)
	}
	defer tty.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newAskModel(ui.NewStyles(os.Stdout), cancel), tea.WithInput(tty), tea.WithOutput(os.Stdout))

	unsubscribe := store.Subscribe(func(c conversation.Change) {
		if c.Kind == conversation.ChangeUpdated && c.Entry.Role == conversation.RoleModel {
			p.Send(askUpdateMsg(c.Entry))
		}
	})
	defer unsubscribe()

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- store.Send(ctx, question)
		p.Send(askDoneMsg{})
	}()

	if _, err := p.Run(); err != nil {
		return askResult{}, err
	}
	if err := <-sendErr; err != nil {
		return askResult{}, err
	}
	return askResult{Reply: lastReply(store.Snapshot()), Cancelled: ctx.Err() != nil}, nil
}
