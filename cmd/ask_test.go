package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/samsaffron/gemchat/internal/config"
	"github.com/samsaffron/gemchat/internal/conversation"
	"github.com/samsaffron/gemchat/internal/exitcode"
	"github.com/samsaffron/gemchat/internal/llm"
	"github.com/samsaffron/gemchat/internal/testutil"
)

func TestStreamPlainTextWritesChunksInOrder(t *testing.T) {
	h := testutil.NewStoreHarness(llm.NewMockFactory().AddChunks("Paris", " is the ", "capital."), "welcome")

	var out bytes.Buffer
	res, err := streamPlainText(context.Background(), h.Store, "capital of France?", &out)
	if err != nil {
		t.Fatalf("streamPlainText: %v", err)
	}
	if got := out.String(); got != "Paris is the capital.\n" {
		t.Fatalf("output=%q", got)
	}
	if res.Reply.Failed || res.Cancelled || res.outcome() != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestStreamPlainTextStripsEscapes(t *testing.T) {
	h := testutil.NewStoreHarness(llm.NewMockFactory().AddChunks("\x1b[31mred\x1b[0m text"), "welcome")

	var out bytes.Buffer
	if _, err := streamPlainText(context.Background(), h.Store, "color", &out); err != nil {
		t.Fatalf("streamPlainText: %v", err)
	}
	if got := out.String(); got != "red text\n" {
		t.Fatalf("output=%q", got)
	}
}

func TestStreamPlainTextReportsFailure(t *testing.T) {
	factory := llm.NewMockFactory().AddTurn(llm.MockTurn{Error: errors.New("boom")})
	h := testutil.NewStoreHarness(factory, "welcome")

	var out bytes.Buffer
	res, err := streamPlainText(context.Background(), h.Store, "hi", &out)
	if err != nil {
		t.Fatalf("streamPlainText: %v", err)
	}
	if !res.Reply.Failed {
		t.Fatalf("expected failed reply: %+v", res.Reply)
	}
	var exitErr exitcode.ExitError
	if !errors.As(res.outcome(), &exitErr) || exitErr.Code != exitcode.ReplyFailed {
		t.Fatalf("outcome=%v", res.outcome())
	}
}

func TestStreamPlainTextRejectsBlankQuestion(t *testing.T) {
	h := testutil.NewStoreHarness(nil, "welcome")
	var out bytes.Buffer
	_, err := streamPlainText(context.Background(), h.Store, "   ", &out)
	if !conversation.IsRejection(err) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestAskResultOutcome(t *testing.T) {
	tests := []struct {
		name string
		res  askResult
		code int
	}{
		{name: "ok", res: askResult{Reply: conversation.Entry{Text: "hi"}}, code: exitcode.Success},
		{name: "failed", res: askResult{Reply: conversation.Entry{Failed: true}}, code: exitcode.ReplyFailed},
		{name: "cancelled", res: askResult{Reply: conversation.Entry{Failed: true}, Cancelled: true}, code: exitcode.Cancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.res.outcome()
			if tt.code == exitcode.Success {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			var exitErr exitcode.ExitError
			if !errors.As(err, &exitErr) || exitErr.Code != tt.code {
				t.Fatalf("outcome=%v, want code %d", err, tt.code)
			}
		})
	}
}

func TestNeedsSetup(t *testing.T) {
	noEnv := func(string) string { return "" }
	withKey := func(k string) string {
		if k == "GEMINI_API_KEY" {
			return "key"
		}
		return ""
	}

	tests := []struct {
		name     string
		explicit string
		exists   bool
		getenv   func(string) string
		want     bool
	}{
		{name: "first run", getenv: noEnv, want: true},
		{name: "env key", getenv: withKey, want: false},
		{name: "file exists", exists: true, getenv: noEnv, want: false},
		{name: "explicit path", explicit: "x.yaml", getenv: noEnv, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsSetup(config.Default(), tt.explicit, tt.exists, tt.getenv); got != tt.want {
				t.Fatalf("needsSetup=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewChatCoreWithMockProvider(t *testing.T) {
	cfg := config.Default()
	applyProviderOverrides(cfg, "mock:demo")

	core, err := newChatCore(cfg)
	if err != nil {
		t.Fatalf("newChatCore: %v", err)
	}
	if core.Provider != "mock" || core.Model != "demo" {
		t.Fatalf("provider=%q model=%q", core.Provider, core.Model)
	}
	snap := core.Store.Snapshot()
	if len(snap.Entries) != 1 || snap.Entries[0].Text != config.DefaultWelcomeMessage {
		t.Fatalf("unexpected initial state: %+v", snap)
	}

	if err := core.Store.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply := lastReply(core.Store.Snapshot()); reply.Failed || reply.Text == "" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}
