package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// sseRecorder serves canned SSE bodies and keeps every decoded request body.
type sseRecorder struct {
	mu     sync.Mutex
	bodies []map[string]any
	events func(turn int) string
}

func (r *sseRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	raw, _ := io.ReadAll(req.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	r.mu.Lock()
	r.bodies = append(r.bodies, body)
	turn := len(r.bodies)
	r.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, r.events(turn))
}

func (r *sseRecorder) messages(i int) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs, _ := r.bodies[i]["messages"].([]any)
	return msgs
}

func anthropicEvents(text ...string) string {
	var b strings.Builder
	b.WriteString("event: message_start\n")
	b.WriteString(`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"usage":{"input_tokens":1,"output_tokens":0}}}` + "\n\n")
	b.WriteString("event: content_block_start\n")
	b.WriteString(`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}` + "\n\n")
	for _, t := range text {
		delta, _ := json.Marshal(t)
		b.WriteString("event: content_block_delta\n")
		fmt.Fprintf(&b, `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%s}}`+"\n\n", delta)
	}
	b.WriteString("event: content_block_stop\n")
	b.WriteString(`data: {"type":"content_block_stop","index":0}` + "\n\n")
	b.WriteString("event: message_stop\n")
	b.WriteString(`data: {"type":"message_stop"}` + "\n\n")
	return b.String()
}

func openaiEvents(text ...string) string {
	var b strings.Builder
	for _, t := range text {
		delta, _ := json.Marshal(t)
		fmt.Fprintf(&b, `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"content":%s},"finish_reason":null}]}`+"\n\n", delta)
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func TestAnthropicSessionStreamsAndKeepsHistory(t *testing.T) {
	rec := &sseRecorder{events: func(turn int) string {
		if turn == 1 {
			return anthropicEvents("Hel", "lo")
		}
		return anthropicEvents("again")
	}}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	sess, err := NewAnthropicFactory("test-key", srv.URL).NewSession(context.Background(), "claude-test", "be brief")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	stream, err := sess.SendStream(context.Background(), "hi")
	if err != nil {
		t.Fatalf("SendStream: %v", err)
	}
	text, err := collect(stream)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Hello" {
		t.Fatalf("text=%q", text)
	}

	stream, err = sess.SendStream(context.Background(), "more")
	if err != nil {
		t.Fatalf("SendStream: %v", err)
	}
	if text, err = collect(stream); err != nil || text != "again" {
		t.Fatalf("second turn text=%q err=%v", text, err)
	}

	if got := len(rec.messages(0)); got != 1 {
		t.Fatalf("first request messages=%d, want 1", got)
	}
	if got := len(rec.messages(1)); got != 3 {
		t.Fatalf("second request messages=%d, want 3 (user, assistant, user)", got)
	}
}

func TestOpenAISessionStreamsAndKeepsHistory(t *testing.T) {
	rec := &sseRecorder{events: func(turn int) string {
		if turn == 1 {
			return openaiEvents("Par", "is")
		}
		return openaiEvents("Berlin")
	}}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	sess, err := NewOpenAIFactory("test-key", srv.URL).NewSession(context.Background(), "gpt-test", "be brief")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	stream, err := sess.SendStream(context.Background(), "capital of France?")
	if err != nil {
		t.Fatalf("SendStream: %v", err)
	}
	if text, err := collect(stream); err != nil || text != "Paris" {
		t.Fatalf("text=%q err=%v", text, err)
	}

	stream, err = sess.SendStream(context.Background(), "and Germany?")
	if err != nil {
		t.Fatalf("SendStream: %v", err)
	}
	if text, err := collect(stream); err != nil || text != "Berlin" {
		t.Fatalf("text=%q err=%v", text, err)
	}

	// system, user
	if got := len(rec.messages(0)); got != 2 {
		t.Fatalf("first request messages=%d, want 2", got)
	}
	// system, user, assistant, user
	if got := len(rec.messages(1)); got != 4 {
		t.Fatalf("second request messages=%d, want 4", got)
	}
}

func TestOpenAISessionReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	sess, err := NewOpenAIFactory("test-key", srv.URL).NewSession(context.Background(), "nope", "")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	stream, err := sess.SendStream(context.Background(), "hi")
	if err != nil {
		t.Fatalf("SendStream: %v", err)
	}
	_, err = collect(stream)
	var te *TransportError
	if err == nil || !errors.As(err, &te) || te.Provider != openaiName {
		t.Fatalf("expected openai transport error, got %v", err)
	}
}
