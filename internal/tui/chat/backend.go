package chat

import (
	"context"

	"github.com/samsaffron/gemchat/internal/conversation"
)

// Backend is the conversation the TUI drives: a local *conversation.Store or a
// RemoteBackend mirroring a gemchat server.
type Backend interface {
	Send(ctx context.Context, text string) error
	Reset()
	Interrupt() bool
	Snapshot() conversation.State
	Subscribe(conversation.Observer) func()
}
