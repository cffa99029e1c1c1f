package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"
)

const mockName = "mock"

// MockTurn represents a single scripted reply from the mock provider.
type MockTurn struct {
	Text      string          // Text to emit, split into chunks of ~10 bytes (ignored when Chunks is set)
	Chunks    []string        // Exact chunks to emit, in order
	Delay     time.Duration   // Optional delay before each chunk
	Gate      <-chan struct{} // When set, one receive is required before each chunk
	Error     error           // Returned after all chunks have been emitted
	OpenError error           // Returned from SendStream instead of a stream
}

// MockFactory is a scripted SessionFactory for tests and offline demos.
// It records every session it creates and every message sent.
type MockFactory struct {
	mu                sync.Mutex
	turns             []MockTurn
	turnIndex         int
	sessions          int
	missingCredential bool
	fallback          string

	Requests []string // Recorded message texts for verification
}

// NewMockFactory creates a mock factory with no scripted turns.
func NewMockFactory() *MockFactory {
	return &MockFactory{}
}

func (m *MockFactory) Name() string {
	return mockName
}

// WithMissingCredential makes NewSession fail the way a real provider does without an API key.
func (m *MockFactory) WithMissingCredential(missing bool) *MockFactory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missingCredential = missing
	return m
}

// WithFallback sets a reply used once the scripted turns run out.
// Without a fallback an exhausted script is an error.
func (m *MockFactory) WithFallback(text string) *MockFactory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = text
	return m
}

// AddTurn adds a response turn and returns the factory for chaining.
func (m *MockFactory) AddTurn(t MockTurn) *MockFactory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
	return m
}

// AddTextResponse is a convenience method to add a simple text response.
func (m *MockFactory) AddTextResponse(text string) *MockFactory {
	return m.AddTurn(MockTurn{Text: text})
}

// AddChunks adds a turn that emits exactly the given chunks.
func (m *MockFactory) AddChunks(chunks ...string) *MockFactory {
	return m.AddTurn(MockTurn{Chunks: chunks})
}

// AddError adds a turn that fails before emitting anything.
func (m *MockFactory) AddError(err error) *MockFactory {
	return m.AddTurn(MockTurn{Error: err})
}

// SessionsCreated returns how many sessions NewSession has built.
func (m *MockFactory) SessionsCreated() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions
}

// RequestCount returns how many messages have been sent through any session.
func (m *MockFactory) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

func (m *MockFactory) NewSession(ctx context.Context, model, systemInstruction string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.missingCredential {
		return nil, missingCredential(mockName, "mock configured without credential")
	}
	m.sessions++
	return &mockSession{factory: m, id: m.sessions}, nil
}

func (m *MockFactory) nextTurn(text string) (MockTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, text)
	if m.turnIndex >= len(m.turns) {
		if m.fallback != "" {
			return MockTurn{Text: m.fallback}, nil
		}
		return MockTurn{}, fmt.Errorf("mock provider: no more turns configured (expected turn %d, have %d)", m.turnIndex, len(m.turns))
	}
	turn := m.turns[m.turnIndex]
	m.turnIndex++
	return turn, nil
}

type mockSession struct {
	factory *MockFactory
	id      int
}

func (s *mockSession) SendStream(ctx context.Context, text string) (Stream, error) {
	turn, err := s.factory.nextTurn(text)
	if err != nil {
		return nil, &TransportError{Provider: mockName, Err: err}
	}
	if turn.OpenError != nil {
		return nil, turn.OpenError
	}

	chunks := turn.Chunks
	if chunks == nil {
		chunks = chunkText(turn.Text, 10)
	}

	return newChunkStream(ctx, mockName, func(ctx context.Context, emit emitFunc) error {
		for _, chunk := range chunks {
			if turn.Gate != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-turn.Gate:
				}
			}
			if turn.Delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(turn.Delay):
				}
			}
			if !emit(chunk) {
				return ctx.Err()
			}
		}
		return turn.Error
	}), nil
}

// chunkText splits text into chunks of approximately the given size.
// It tries to break at word boundaries when possible.
func chunkText(text string, chunkSize int) []string {
	if len(text) == 0 {
		return nil
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= chunkSize {
			chunks = append(chunks, text)
			break
		}

		// Find a good break point (space) near the chunk size
		breakPoint := chunkSize
		for i := chunkSize; i > chunkSize/2; i-- {
			if text[i] == ' ' {
				breakPoint = i + 1 // include the space in current chunk
				break
			}
		}

		for breakPoint > 1 && !utf8.RuneStart(text[breakPoint]) {
			breakPoint--
		}

		chunks = append(chunks, text[:breakPoint])
		text = text[breakPoint:]
	}
	return chunks
}
