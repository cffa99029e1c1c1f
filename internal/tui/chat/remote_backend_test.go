package chat

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/samsaffron/gemchat/internal/conversation"
	"github.com/samsaffron/gemchat/internal/gateway"
	"github.com/samsaffron/gemchat/internal/llm"
	servechat "github.com/samsaffron/gemchat/internal/serve/chat"
)

func startRemote(t *testing.T, factory *llm.MockFactory, token string) *httptest.Server {
	t.Helper()
	store := conversation.NewStore(gateway.New(factory, "mock", ""), conversation.Options{WelcomeMessage: "Welcome!"})
	srv := servechat.NewServer(store, servechat.Options{App: "Test", Provider: "mock", Model: "mock-model", Token: token})
	ts := httptest.NewServer(srv.HTTPHandler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

func waitForChange(t *testing.T, ch <-chan conversation.Change, match func(conversation.Change) bool) conversation.Change {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case c := <-ch:
			if match(c) {
				return c
			}
		case <-timeout:
			t.Fatal("timed out waiting for change")
		}
	}
}

func TestRemoteBackendMirrorsConversation(t *testing.T) {
	ts := startRemote(t, llm.NewMockFactory().AddChunks("Hi", " there"), "")

	backend, err := NewRemoteBackend(context.Background(), ts.URL, "")
	if err != nil {
		t.Fatalf("NewRemoteBackend: %v", err)
	}
	defer backend.Close()

	if backend.Model != "mock-model" || backend.Provider != "mock" {
		t.Fatalf("unexpected header: %s %s", backend.Provider, backend.Model)
	}
	snap := backend.Snapshot()
	if len(snap.Entries) != 1 || snap.Entries[0].Text != "Welcome!" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	changes := make(chan conversation.Change, 64)
	unsubscribe := backend.Subscribe(func(c conversation.Change) { changes <- c })
	defer unsubscribe()

	if err := backend.Send(context.Background(), "Hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	final := waitForChange(t, changes, func(c conversation.Change) bool {
		return c.Kind == conversation.ChangeBusy && !c.State.Busy
	})
	last, _ := final.State.Last()
	if last.Text != "Hi there" || last.Streaming || last.Failed {
		t.Fatalf("unexpected final entry: %+v", last)
	}
	if len(final.State.Entries) != 3 {
		t.Fatalf("entries=%d, want 3", len(final.State.Entries))
	}

	backend.Reset()
	reset := waitForChange(t, changes, func(c conversation.Change) bool { return c.Kind == conversation.ChangeReset })
	if len(reset.State.Entries) != 1 || reset.State.Entries[0].Text != "Welcome!" {
		t.Fatalf("unexpected reset state: %+v", reset.State)
	}
}

func TestRemoteBackendRejectsLocally(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	ts := startRemote(t, llm.NewMockFactory().AddTurn(llm.MockTurn{Chunks: []string{"slow"}, Gate: gate}), "")

	backend, err := NewRemoteBackend(context.Background(), ts.URL, "")
	if err != nil {
		t.Fatalf("NewRemoteBackend: %v", err)
	}
	defer backend.Close()

	var ve *conversation.ValidationError
	if err := backend.Send(context.Background(), "   "); !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}

	changes := make(chan conversation.Change, 64)
	defer backend.Subscribe(func(c conversation.Change) { changes <- c })()

	if err := backend.Send(context.Background(), "first"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitForChange(t, changes, func(c conversation.Change) bool { return c.State.Busy })

	if err := backend.Send(context.Background(), "second"); !errors.Is(err, conversation.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestRemoteBackendRequiresToken(t *testing.T) {
	ts := startRemote(t, llm.NewMockFactory(), "secret")

	if _, err := NewRemoteBackend(context.Background(), ts.URL, ""); err == nil || !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("expected unauthorized error, got %v", err)
	}

	backend, err := NewRemoteBackend(context.Background(), ts.URL, "secret")
	if err != nil {
		t.Fatalf("NewRemoteBackend with token: %v", err)
	}
	backend.Close()
}

func TestNormalizeWSURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "localhost:8080", want: "ws://localhost:8080/chat/ws"},
		{in: "http://example.com", want: "ws://example.com/chat/ws"},
		{in: "https://example.com/base/", want: "wss://example.com/base/chat/ws"},
		{in: "ws://example.com/chat/ws", want: "ws://example.com/chat/ws"},
	}
	for _, tt := range tests {
		got, err := normalizeWSURL(tt.in)
		if err != nil {
			t.Fatalf("normalizeWSURL(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("normalizeWSURL(%q)=%q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := normalizeWSURL("  "); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestApplyWireEventIgnoresUnknownEntry(t *testing.T) {
	state := conversation.State{Entries: []conversation.Entry{{ID: "msg-1", Text: "a"}}}
	_, ok := applyWireEvent(&state, servechat.WireEvent{
		Type:  servechat.EventEntryUpdated,
		Entry: &servechat.WireEntry{ID: "msg-9", Text: "b"},
	})
	if ok {
		t.Fatal("update for a missing entry should be ignored")
	}
	if state.Entries[0].Text != "a" {
		t.Fatalf("state changed: %+v", state)
	}
}
