package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/samsaffron/gemchat/internal/conversation"
	servechat "github.com/samsaffron/gemchat/internal/serve/chat"
)

// RemoteBackend mirrors the conversation of a gemchat server over WebSocket.
// Implements Backend.
type RemoteBackend struct {
	url  string
	conn *websocket.Conn

	Provider string
	Model    string

	sendCh  chan servechat.ClientEvent
	notices chan string
	done    chan struct{}
	once    sync.Once

	mu       sync.Mutex
	state    conversation.State
	watchers map[int]conversation.Observer
	nextObs  int
}

// NewRemoteBackend opens the WebSocket connection and waits for the initial snapshot.
func NewRemoteBackend(ctx context.Context, urlStr, token string) (*RemoteBackend, error) {
	wsURL, err := normalizeWSURL(urlStr)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	if strings.TrimSpace(token) != "" {
		headers.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("connect %s: unauthorized (check --token)", wsURL)
		}
		return nil, fmt.Errorf("connect %s: %w", wsURL, err)
	}

	var ready servechat.WireEvent
	if err := conn.ReadJSON(&ready); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if ready.Type != servechat.EventSnapshot {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected event: %s", ready.Type)
	}

	backend := &RemoteBackend{
		url:      wsURL,
		conn:     conn,
		Provider: ready.Provider,
		Model:    ready.Model,
		sendCh:   make(chan servechat.ClientEvent, 32),
		notices:  make(chan string, 16),
		done:     make(chan struct{}),
		watchers: make(map[int]conversation.Observer),
		state:    stateFromEntries(ready.Entries, ready.Busy),
	}

	go backend.writeLoop()
	go backend.readLoop()

	return backend, nil
}

// Notices delivers server error messages and connection loss. It is closed when the connection ends.
func (r *RemoteBackend) Notices() <-chan string {
	return r.notices
}

// Close ends the connection.
func (r *RemoteBackend) Close() error {
	r.once.Do(func() { close(r.done) })
	return r.conn.Close()
}

func (r *RemoteBackend) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return &conversation.ValidationError{Reason: "message is empty"}
	}
	r.mu.Lock()
	busy := r.state.Busy
	r.mu.Unlock()
	if busy {
		return conversation.ErrBusy
	}
	return r.enqueue(ctx, servechat.ClientEvent{Type: servechat.ClientMessage, Text: text})
}

// Interrupt asks the server to stop the current reply.
func (r *RemoteBackend) Interrupt() bool {
	r.mu.Lock()
	busy := r.state.Busy
	r.mu.Unlock()
	if !busy {
		return false
	}
	return r.enqueue(context.Background(), servechat.ClientEvent{Type: servechat.ClientInterrupt}) == nil
}

// Reset clears the conversation on the server for every connected client.
func (r *RemoteBackend) Reset() {
	_ = r.enqueue(context.Background(), servechat.ClientEvent{Type: servechat.ClientReset})
}

func (r *RemoteBackend) Snapshot() conversation.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyState(r.state)
}

func (r *RemoteBackend) Subscribe(obs conversation.Observer) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextObs
	r.nextObs++
	r.watchers[id] = obs
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.watchers, id)
	}
}

func (r *RemoteBackend) enqueue(ctx context.Context, ev servechat.ClientEvent) error {
	select {
	case r.sendCh <- ev:
		return nil
	case <-r.done:
		return errors.New("disconnected from server")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *RemoteBackend) writeLoop() {
	for {
		select {
		case ev := <-r.sendCh:
			if err := r.conn.WriteJSON(ev); err != nil {
				slog.Debug("remote write failed", "url", r.url, "err", err)
				return
			}
		case <-r.done:
			return
		}
	}
}

func (r *RemoteBackend) readLoop() {
	defer close(r.notices)
	for {
		var ev servechat.WireEvent
		if err := r.conn.ReadJSON(&ev); err != nil {
			select {
			case <-r.done:
			default:
				r.notify("Disconnected from server: " + err.Error())
			}
			r.once.Do(func() { close(r.done) })
			return
		}
		r.handleWireEvent(ev)
	}
}

func (r *RemoteBackend) notify(msg string) {
	select {
	case r.notices <- msg:
	default:
	}
}

func (r *RemoteBackend) handleWireEvent(ev servechat.WireEvent) {
	if ev.Type == servechat.EventError {
		r.notify(ev.Message)
		return
	}

	r.mu.Lock()
	change, ok := applyWireEvent(&r.state, ev)
	watchers := make([]conversation.Observer, 0, len(r.watchers))
	for _, obs := range r.watchers {
		watchers = append(watchers, obs)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	for _, obs := range watchers {
		obs(change)
	}
}

// applyWireEvent folds a server event into state and returns the equivalent change.
func applyWireEvent(state *conversation.State, ev servechat.WireEvent) (conversation.Change, bool) {
	var change conversation.Change
	switch ev.Type {
	case servechat.EventSnapshot, servechat.EventReset:
		*state = stateFromEntries(ev.Entries, ev.Busy)
		change.Kind = conversation.ChangeReset
	case servechat.EventEntryAppended:
		if ev.Entry == nil {
			return change, false
		}
		entry := servechat.FromWireEntry(*ev.Entry)
		state.Entries = append(state.Entries, entry)
		state.Busy = ev.Busy
		change.Kind = conversation.ChangeAppended
		change.Entry = entry
	case servechat.EventEntryUpdated:
		if ev.Entry == nil {
			return change, false
		}
		entry := servechat.FromWireEntry(*ev.Entry)
		state.Busy = ev.Busy
		found := false
		for i := range state.Entries {
			if state.Entries[i].ID == entry.ID {
				state.Entries[i] = entry
				found = true
				break
			}
		}
		if !found {
			return change, false
		}
		change.Kind = conversation.ChangeUpdated
		change.Entry = entry
	case servechat.EventBusy:
		state.Busy = ev.Busy
		change.Kind = conversation.ChangeBusy
	default:
		return change, false
	}
	change.State = copyState(*state)
	return change, true
}

func stateFromEntries(entries []servechat.WireEntry, busy bool) conversation.State {
	out := conversation.State{Busy: busy, Entries: make([]conversation.Entry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, servechat.FromWireEntry(e))
	}
	return out
}

func copyState(s conversation.State) conversation.State {
	entries := make([]conversation.Entry, len(s.Entries))
	copy(entries, s.Entries)
	return conversation.State{Entries: entries, Busy: s.Busy}
}

func normalizeWSURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", errors.New("remote URL is required")
	}
	if !strings.HasPrefix(value, "ws://") && !strings.HasPrefix(value, "wss://") && !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		value = "ws://" + value
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}
	if !strings.HasSuffix(parsed.Path, "/chat/ws") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/") + "/chat/ws"
	}
	return parsed.String(), nil
}
