package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/samsaffron/gemchat/internal/config"
	"github.com/samsaffron/gemchat/internal/conversation"
	"github.com/samsaffron/gemchat/internal/tui/chat"
	"github.com/samsaffron/gemchat/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const chatLogFile = "gemchat-debug.log"

var (
	chatRemote string
	chatToken  string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive TUI chat session with the model.

Examples:
  gemchat chat
  gemchat chat --provider anthropic:claude-sonnet-4-5
  gemchat chat --remote localhost:8080 --token secret

Keyboard shortcuts:
  Enter        - Send message
  Alt+Enter    - New line (also Ctrl+J)
  Esc          - Stop the reply being streamed
  Ctrl+K       - Clear conversation
  PgUp/PgDn    - Scroll
  Ctrl+C       - Quit

Slash commands:
  /help        - Show help
  /clear       - Clear conversation
  /stop        - Stop the reply being streamed
  /model       - Show current model
  /quit        - Exit chat`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatRemote, "remote", "", "Attach to a running gemchat serve instead of calling the model directly")
	chatCmd.Flags().StringVar(&chatToken, "token", "", "Bearer token for --remote")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("chat needs an interactive terminal; use `gemchat ask` for piped input")
	}

	closeLog, err := redirectLogging(debug)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	opts := chat.Options{
		Title:   config.AppName,
		Styles:  ui.DefaultStyles(),
		Context: ctx,
	}

	if chatRemote != "" {
		remote, err := chat.NewRemoteBackend(ctx, chatRemote, chatToken)
		if err != nil {
			return err
		}
		defer remote.Close()
		opts.Backend = remote
		opts.Provider = remote.Provider
		opts.Model = remote.Model
		opts.Notices = remote.Notices()
	} else {
		cfg, err := loadConfigWithSetup()
		if err != nil {
			return err
		}
		applyProviderOverrides(cfg, providerFlag)
		core, err := newChatCore(cfg)
		if err != nil {
			return err
		}
		opts.Backend = core.Store
		opts.Provider = core.Provider
		opts.Model = core.Model
	}

	// Changes are queued from before the snapshot so none is missed; each one
	// carries the full state, so replaying one older than the snapshot is harmless.
	changes := make(chan conversation.Change, 256)
	unsubscribe := opts.Backend.Subscribe(func(c conversation.Change) {
		select {
		case changes <- c:
		case <-ctx.Done():
		}
	})
	defer unsubscribe()
	opts.Initial = opts.Backend.Snapshot()

	p := tea.NewProgram(chat.New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	go func() {
		for {
			select {
			case c := <-changes:
				p.Send(chat.ChangeMsg{Change: c})
			case <-ctx.Done():
				return
			}
		}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to run chat: %w", err)
	}
	return nil
}

// redirectLogging keeps log output off the alternate screen.
func redirectLogging(debug bool) (func(), error) {
	if !debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return func() {}, nil
	}
	f, err := tea.LogToFile(chatLogFile, "gemchat")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", chatLogFile, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return func() { f.Close() }, nil
}
