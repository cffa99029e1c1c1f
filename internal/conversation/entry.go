package conversation

import "time"

// Role identifies who authored an entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Entry is one message in the conversation log.
type Entry struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Streaming bool      `json:"streaming"`
	Failed    bool      `json:"failed"`
}

// State is a point-in-time copy of the conversation.
type State struct {
	Entries []Entry `json:"entries"`
	Busy    bool    `json:"busy"`
}

func (s State) clone() State {
	entries := make([]Entry, len(s.Entries))
	copy(entries, s.Entries)
	return State{Entries: entries, Busy: s.Busy}
}

// Last returns the newest entry, or false for an empty log.
func (s State) Last() (Entry, bool) {
	if len(s.Entries) == 0 {
		return Entry{}, false
	}
	return s.Entries[len(s.Entries)-1], true
}

// ChangeKind describes what a Change did to the state.
type ChangeKind int

const (
	ChangeAppended ChangeKind = iota
	ChangeUpdated
	ChangeReset
	ChangeBusy
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAppended:
		return "appended"
	case ChangeUpdated:
		return "updated"
	case ChangeReset:
		return "reset"
	case ChangeBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Change is delivered to observers after every mutation.
// Entry is set for appended and updated changes; State is the state right after the mutation.
type Change struct {
	Kind  ChangeKind
	Entry Entry
	State State
}

// Observer receives changes in mutation order. It runs with the notification
// lock held and must not call back into the Store; use Change.State instead.
type Observer func(Change)
