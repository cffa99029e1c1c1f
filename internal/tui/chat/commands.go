package chat

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"
)

// Command represents a slash command
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
}

// AllCommands returns all available slash commands
func AllCommands() []Command {
	return []Command{
		{
			Name:        "help",
			Aliases:     []string{"h", "?"},
			Description: "Show help and available commands",
			Usage:       "/help",
		},
		{
			Name:        "clear",
			Aliases:     []string{"c", "reset"},
			Description: "Clear the conversation and start over",
			Usage:       "/clear",
		},
		{
			Name:        "stop",
			Description: "Stop the reply being streamed",
			Usage:       "/stop",
		},
		{
			Name:        "model",
			Aliases:     []string{"m"},
			Description: "Show the active provider and model",
			Usage:       "/model",
		},
		{
			Name:        "quit",
			Aliases:     []string{"q", "exit"},
			Description: "Exit chat",
			Usage:       "/quit",
		},
	}
}

// CommandSource implements fuzzy.Source for command searching
type CommandSource []Command

func (c CommandSource) String(i int) string {
	return c[i].Name
}

func (c CommandSource) Len() int {
	return len(c)
}

// FilterCommands returns commands matching the query using fuzzy search
func FilterCommands(query string) []Command {
	commands := AllCommands()
	query = strings.TrimPrefix(strings.TrimSpace(query), "/")
	if query == "" {
		return commands
	}

	queryLower := strings.ToLower(query)
	if cmd, ok := lookupCommand(queryLower); ok {
		return []Command{cmd}
	}

	matches := fuzzy.FindFrom(queryLower, CommandSource(commands))
	result := make([]Command, 0, len(matches))
	for _, match := range matches {
		result = append(result, commands[match.Index])
	}
	return result
}

func lookupCommand(name string) (Command, bool) {
	for _, c := range AllCommands() {
		if c.Name == name {
			return c, true
		}
		for _, alias := range c.Aliases {
			if alias == name {
				return c, true
			}
		}
	}
	return Command{}, false
}

// ExecuteCommand handles slash command execution
func (m *Model) ExecuteCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return m, nil
	}
	m.input.Reset()

	cmdName := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	cmd, ok := lookupCommand(cmdName)
	if !ok {
		matches := FilterCommands(cmdName)
		switch len(matches) {
		case 0:
			return m.showNotice(fmt.Sprintf("Unknown command: /%s. Type /help for available commands.", cmdName))
		case 1:
			cmd = matches[0]
		default:
			names := make([]string, 0, len(matches))
			for _, c := range matches {
				names = append(names, "/"+c.Name)
			}
			return m.showNotice(fmt.Sprintf("Ambiguous command: /%s. Did you mean: %s?", cmdName, strings.Join(names, ", ")))
		}
	}

	switch cmd.Name {
	case "help":
		m.showHelp = !m.showHelp
		m.refreshViewport()
		return m, nil
	case "clear":
		return m.askClear()
	case "stop":
		return m.interrupt()
	case "model":
		return m.showNotice(fmt.Sprintf("Chatting with %s (%s). Restart with --provider to switch.", m.modelName, m.providerName))
	case "quit":
		m.quitting = true
		return m, tea.Quit
	default:
		return m.showNotice(fmt.Sprintf("Command /%s is not yet implemented.", cmd.Name))
	}
}

func (m *Model) showNotice(content string) (tea.Model, tea.Cmd) {
	m.notice = content
	return m, nil
}

func helpText() string {
	var b strings.Builder
	b.WriteString("## Available Commands\n\n")
	for _, cmd := range AllCommands() {
		b.WriteString(fmt.Sprintf("**%s**", cmd.Usage))
		if len(cmd.Aliases) > 0 {
			b.WriteString(fmt.Sprintf(" (aliases: %s)", strings.Join(cmd.Aliases, ", ")))
		}
		b.WriteString(fmt.Sprintf(" - %s\n", cmd.Description))
	}
	b.WriteString("\n## Keyboard Shortcuts\n\n")
	b.WriteString("- `Enter` - Send message\n")
	b.WriteString("- `Alt+Enter` / `Ctrl+J` - New line\n")
	b.WriteString("- `Esc` - Stop the current reply\n")
	b.WriteString("- `Ctrl+K` - Clear conversation\n")
	b.WriteString("- `PgUp`/`PgDn` - Scroll\n")
	b.WriteString("- `Ctrl+C` - Quit\n")
	return b.String()
}
