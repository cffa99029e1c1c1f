package chat

import (
	"time"

	"github.com/samsaffron/gemchat/internal/conversation"
)

// Server -> client event types.
const (
	EventSnapshot      = "snapshot"
	EventEntryAppended = "entry_appended"
	EventEntryUpdated  = "entry_updated"
	EventReset         = "reset"
	EventBusy          = "busy"
	EventError         = "error"
)

// Client -> server event types.
const (
	ClientMessage   = "message"
	ClientReset     = "reset"
	ClientInterrupt = "interrupt"
)

// WireEvent is the JSON envelope sent server->client.
// Every event except error carries a monotonic Seq.
type WireEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	// snapshot
	App      string `json:"app,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// snapshot / reset
	Entries []WireEntry `json:"entries,omitempty"`

	// entry_appended / entry_updated
	Entry *WireEntry `json:"entry,omitempty"`

	// every state-bearing event
	Busy bool `json:"busy"`

	// error
	Message string `json:"message,omitempty"`
}

// WireEntry is one conversation entry as the browser sees it.
type WireEntry struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	HTML      string    `json:"html,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Streaming bool      `json:"streaming"`
	Failed    bool      `json:"failed"`
}

// ClientEvent is the JSON envelope sent client->server.
type ClientEvent struct {
	Type string `json:"type"`

	// message
	Text string `json:"text,omitempty"`
}

// ToWireEntry converts an entry. Settled model replies get rendered HTML when render is non-nil.
func ToWireEntry(e conversation.Entry, render func(string) string) WireEntry {
	w := WireEntry{
		ID:        e.ID,
		Role:      string(e.Role),
		Text:      e.Text,
		Timestamp: e.Timestamp,
		Streaming: e.Streaming,
		Failed:    e.Failed,
	}
	if render != nil && e.Role == conversation.RoleModel && !e.Failed && !e.Streaming {
		w.HTML = render(e.Text)
	}
	return w
}

func toWireEntries(entries []conversation.Entry, render func(string) string) []WireEntry {
	out := make([]WireEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, ToWireEntry(e, render))
	}
	return out
}

// ToWireEvent converts a conversation change into a WireEvent with the supplied sequence.
func ToWireEvent(seq int64, c conversation.Change, render func(string) string) WireEvent {
	switch c.Kind {
	case conversation.ChangeAppended:
		entry := ToWireEntry(c.Entry, render)
		return WireEvent{Seq: seq, Type: EventEntryAppended, Entry: &entry, Busy: c.State.Busy}
	case conversation.ChangeUpdated:
		entry := ToWireEntry(c.Entry, render)
		return WireEvent{Seq: seq, Type: EventEntryUpdated, Entry: &entry, Busy: c.State.Busy}
	case conversation.ChangeReset:
		return WireEvent{Seq: seq, Type: EventReset, Entries: toWireEntries(c.State.Entries, render), Busy: c.State.Busy}
	case conversation.ChangeBusy:
		return WireEvent{Seq: seq, Type: EventBusy, Busy: c.State.Busy}
	default:
		return WireEvent{Seq: seq}
	}
}

// FromWireEntry converts a WireEntry back into a conversation entry.
func FromWireEntry(w WireEntry) conversation.Entry {
	return conversation.Entry{
		ID:        w.ID,
		Role:      conversation.Role(w.Role),
		Text:      w.Text,
		Timestamp: w.Timestamp,
		Streaming: w.Streaming,
		Failed:    w.Failed,
	}
}
