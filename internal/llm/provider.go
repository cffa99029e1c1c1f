package llm

import (
	"context"
	"errors"
	"fmt"
)

// TextChunk is one incremental fragment of model output.
type TextChunk struct {
	Text string
}

// Stream is a pull-based, single-consumer sequence of chunks.
// Recv returns io.EOF once the remote turn completes.
type Stream interface {
	Recv() (TextChunk, error)
	Close() error
}

// Session is one conversation handle held by a remote provider.
type Session interface {
	SendStream(ctx context.Context, text string) (Stream, error)
}

// SessionFactory creates provider sessions.
type SessionFactory interface {
	Name() string
	NewSession(ctx context.Context, model, systemInstruction string) (Session, error)
}

// ErrMissingCredential is matched by every ConfigurationError raised for an absent API key.
var ErrMissingCredential = errors.New("API key is missing")

// ConfigurationError reports that a provider could not be configured.
type ConfigurationError struct {
	Provider string
	Hint     string
	Err      error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Err)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func missingCredential(provider, hint string) error {
	return &ConfigurationError{Provider: provider, Hint: hint, Err: ErrMissingCredential}
}

// TransportError wraps a failure while opening or reading a remote stream.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err came from a missing or invalid provider configuration.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
