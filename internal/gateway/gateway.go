// Package gateway owns the single remote conversation session a chat client talks to.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samsaffron/gemchat/internal/llm"
)

// ErrEmptyMessage is returned when Send is called with blank text.
var ErrEmptyMessage = errors.New("message is empty")

// Gateway lazily opens one provider session and reuses it until Reset.
type Gateway struct {
	factory           llm.SessionFactory
	model             string
	systemInstruction string

	mu         sync.Mutex
	session    llm.Session
	sessionID  string
	generation int
}

func New(factory llm.SessionFactory, model, systemInstruction string) *Gateway {
	return &Gateway{
		factory:           factory,
		model:             model,
		systemInstruction: systemInstruction,
	}
}

// Model returns the model identifier new sessions are opened with.
func (g *Gateway) Model() string {
	return g.model
}

// Send streams the reply to text from the current session, opening one first if needed.
func (g *Gateway) Send(ctx context.Context, text string) (llm.Stream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	session, id, err := g.acquire(ctx)
	if err != nil {
		return nil, err
	}

	slog.Debug("gateway: sending message", "session", id, "chars", len(text))
	stream, err := session.SendStream(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return stream, nil
}

// acquire returns the live session, constructing it under the lock so concurrent
// callers share one session. A failed construction publishes nothing.
func (g *Gateway) acquire(ctx context.Context) (llm.Session, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session != nil {
		return g.session, g.sessionID, nil
	}

	session, err := g.factory.NewSession(ctx, g.model, g.systemInstruction)
	if err != nil {
		slog.Warn("gateway: session creation failed", "provider", g.factory.Name(), "err", err)
		return nil, "", fmt.Errorf("open %s session: %w", g.factory.Name(), err)
	}

	g.session = session
	g.sessionID = uuid.NewString()
	g.generation++
	slog.Info("gateway: session opened", "session", g.sessionID, "provider", g.factory.Name(), "model", g.model)
	return g.session, g.sessionID, nil
}

// Reset detaches the current session. Streams already handed out keep running.
func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session != nil {
		slog.Info("gateway: session detached", "session", g.sessionID)
	}
	g.session = nil
	g.sessionID = ""
}

// Generation returns how many sessions have been opened so far.
func (g *Gateway) Generation() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generation
}

// HasSession reports whether a session is currently attached.
func (g *Gateway) HasSession() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session != nil
}
