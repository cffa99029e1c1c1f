package chat

import (
	"io"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/samsaffron/gemchat/internal/conversation"
	"github.com/samsaffron/gemchat/internal/llm"
	"github.com/samsaffron/gemchat/internal/testutil"
	"github.com/samsaffron/gemchat/internal/ui"
)

func TestModelDrivesStoreEndToEnd(t *testing.T) {
	h := testutil.NewStoreHarness(llm.NewMockFactory().AddChunks("The answer ", "is **42**."), "Hello! Ask me anything.")

	m := New(Options{
		Backend:  h.Store,
		Provider: "mock",
		Model:    "mock",
		Initial:  h.Store.Snapshot(),
		Styles:   ui.NewStyles(io.Discard),
	})
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	testutil.AssertContainsPlain(t, m.View(), "Hello! Ask me anything.")

	m.input.SetValue("What is the answer?")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	result := run(cmd)
	if res, ok := result.(sendResultMsg); !ok || res.err != nil {
		t.Fatalf("unexpected send result %#v", result)
	}

	for _, c := range h.Changes() {
		m.Update(ChangeMsg{Change: c})
	}

	if m.state.Busy {
		t.Fatal("model should be idle after the exchange")
	}
	testutil.AssertEntries(t, m.state,
		testutil.WantEntry{Role: conversation.RoleModel, Text: "Hello! Ask me anything."},
		testutil.WantEntry{Role: conversation.RoleUser, Text: "What is the answer?"},
		testutil.WantEntry{Role: conversation.RoleModel, Text: "The answer is **42**."},
	)
	view := m.View()
	testutil.AssertContainsPlain(t, view, "What is the answer?")
	testutil.AssertContainsPlain(t, view, "The answer is 42.")
	testutil.AssertNotContainsPlain(t, view, "**42**")

	kinds := h.Kinds()
	want := []conversation.ChangeKind{
		conversation.ChangeAppended,
		conversation.ChangeBusy,
		conversation.ChangeAppended,
		conversation.ChangeUpdated,
		conversation.ChangeUpdated,
		conversation.ChangeUpdated,
		conversation.ChangeBusy,
	}
	if len(kinds) != len(want) {
		t.Fatalf("kinds=%v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds=%v, want %v", kinds, want)
		}
	}
}
