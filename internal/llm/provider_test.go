package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestConfigurationErrorMessage(t *testing.T) {
	err := missingCredential("gemini", "set GEMINI_API_KEY")
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if !IsConfigurationError(err) {
		t.Fatalf("expected configuration error")
	}
	want := "gemini: API key is missing (set GEMINI_API_KEY)"
	if err.Error() != want {
		t.Fatalf("Error()=%q, want %q", err.Error(), want)
	}
}

func TestWrapTransport(t *testing.T) {
	plain := errors.New("connection reset")
	cfgErr := missingCredential("openai", "")
	already := &TransportError{Provider: "anthropic", Err: plain}

	tests := []struct {
		name      string
		err       error
		transport bool
		same      bool
	}{
		{name: "plain error wrapped", err: plain, transport: true},
		{name: "canceled passes through", err: context.Canceled, same: true},
		{name: "deadline passes through", err: fmt.Errorf("read: %w", context.DeadlineExceeded), same: true},
		{name: "configuration passes through", err: cfgErr, same: true},
		{name: "transport not rewrapped", err: already, transport: true, same: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapTransport("gemini", tt.err)
			if tt.same && got != tt.err {
				t.Fatalf("expected error to pass through unchanged, got %v", got)
			}
			var te *TransportError
			if errors.As(got, &te) != tt.transport {
				t.Fatalf("transport=%v for %v", !tt.transport, got)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("wrapped error lost its cause: %v", got)
			}
		})
	}

	wrapped := wrapTransport("gemini", plain)
	if !strings.HasPrefix(wrapped.Error(), "gemini transport error:") {
		t.Fatalf("Error()=%q", wrapped.Error())
	}
}

func TestChooseModel(t *testing.T) {
	tests := []struct {
		configured string
		fallback   string
		want       string
	}{
		{configured: "", fallback: "gemini-3-flash-preview", want: "gemini-3-flash-preview"},
		{configured: "   ", fallback: "gpt-5.2", want: "gpt-5.2"},
		{configured: "claude-opus-4-1", fallback: "claude-sonnet-4-5", want: "claude-opus-4-1"},
		{configured: " gemini-2.5-pro ", fallback: "gemini-3-flash-preview", want: "gemini-2.5-pro"},
	}
	for _, tt := range tests {
		if got := chooseModel(tt.configured, tt.fallback); got != tt.want {
			t.Fatalf("chooseModel(%q, %q)=%q, want %q", tt.configured, tt.fallback, got, tt.want)
		}
	}
}
