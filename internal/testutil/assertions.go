package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/samsaffron/gemchat/internal/conversation"
)

// StripANSI removes terminal escape sequences from s.
func StripANSI(s string) string {
	return ansi.Strip(s)
}

// AssertContainsPlain fails if output (after stripping ANSI) does not contain expected.
func AssertContainsPlain(t *testing.T, output, expected string) {
	t.Helper()
	plain := StripANSI(output)
	if !strings.Contains(plain, expected) {
		t.Errorf("output does not contain expected string\nExpected to find: %q\nIn output (plain):\n%s", expected, truncateForError(plain))
	}
}

// AssertNotContainsPlain fails if output (after stripping ANSI) contains unexpected.
func AssertNotContainsPlain(t *testing.T, output, unexpected string) {
	t.Helper()
	plain := StripANSI(output)
	if strings.Contains(plain, unexpected) {
		t.Errorf("output contains unexpected string\nDid not expect to find: %q\nIn output (plain):\n%s", unexpected, truncateForError(plain))
	}
}

// WantEntry describes the visible parts of a conversation entry.
type WantEntry struct {
	Role   conversation.Role
	Text   string
	Failed bool
}

// AssertEntries fails unless state holds exactly the wanted entries, in order, none still streaming.
func AssertEntries(t *testing.T, state conversation.State, want ...WantEntry) {
	t.Helper()
	if len(state.Entries) != len(want) {
		t.Fatalf("got %d entries, want %d\n%s", len(state.Entries), len(want), describeEntries(state.Entries))
	}
	for i, w := range want {
		e := state.Entries[i]
		if e.Role != w.Role || e.Text != w.Text || e.Failed != w.Failed || e.Streaming {
			t.Fatalf("entry %d = {%s %q failed=%v streaming=%v}, want {%s %q failed=%v}\n%s",
				i, e.Role, e.Text, e.Failed, e.Streaming, w.Role, w.Text, w.Failed, describeEntries(state.Entries))
		}
	}
}

func describeEntries(entries []conversation.Entry) string {
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "  %d %s %q\n", i, e.Role, e.Text)
	}
	return truncateForError(b.String())
}

// truncateForError truncates output for error messages to avoid huge logs.
func truncateForError(s string) string {
	const maxLen = 2000
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "\n... [truncated]"
}
