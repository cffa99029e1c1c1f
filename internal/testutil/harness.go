package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samsaffron/gemchat/internal/conversation"
	"github.com/samsaffron/gemchat/internal/gateway"
	"github.com/samsaffron/gemchat/internal/llm"
)

// DefaultTimeout bounds every wait in the harness.
const DefaultTimeout = 3 * time.Second

// StoreHarness wires a Store to a scripted mock provider and records every change.
type StoreHarness struct {
	Factory *llm.MockFactory
	Gateway *gateway.Gateway
	Store   *conversation.Store

	mu      sync.Mutex
	changes []conversation.Change
	signal  chan struct{}
}

// NewStoreHarness creates a harness whose provider replies from factory's script.
func NewStoreHarness(factory *llm.MockFactory, welcome string) *StoreHarness {
	if factory == nil {
		factory = llm.NewMockFactory()
	}
	gw := gateway.New(factory, "mock", "")
	h := &StoreHarness{
		Factory: factory,
		Gateway: gw,
		Store:   conversation.NewStore(gw, conversation.Options{WelcomeMessage: welcome}),
		signal:  make(chan struct{}, 1),
	}
	h.Store.Subscribe(h.record)
	return h
}

func (h *StoreHarness) record(c conversation.Change) {
	h.mu.Lock()
	h.changes = append(h.changes, c)
	h.mu.Unlock()
	select {
	case h.signal <- struct{}{}:
	default:
	}
}

// Send runs one exchange to completion.
func (h *StoreHarness) Send(text string) error {
	return h.Store.Send(context.Background(), text)
}

// Changes returns every change recorded so far.
func (h *StoreHarness) Changes() []conversation.Change {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]conversation.Change, len(h.changes))
	copy(out, h.changes)
	return out
}

// Kinds returns the kinds of the recorded changes, in order.
func (h *StoreHarness) Kinds() []conversation.ChangeKind {
	changes := h.Changes()
	kinds := make([]conversation.ChangeKind, len(changes))
	for i, c := range changes {
		kinds[i] = c.Kind
	}
	return kinds
}

// WaitFor blocks until a recorded change satisfies match and returns it.
func (h *StoreHarness) WaitFor(t *testing.T, match func(conversation.Change) bool) conversation.Change {
	t.Helper()
	deadline := time.After(DefaultTimeout)
	seen := 0
	for {
		changes := h.Changes()
		for _, c := range changes[seen:] {
			if match(c) {
				return c
			}
		}
		seen = len(changes)
		select {
		case <-h.signal:
		case <-deadline:
			t.Fatalf("timed out after %s waiting for change (saw %d)", DefaultTimeout, seen)
			return conversation.Change{}
		}
	}
}

// Idle reports whether a change marks the end of an exchange.
func Idle(c conversation.Change) bool {
	return c.Kind == conversation.ChangeBusy && !c.State.Busy
}
