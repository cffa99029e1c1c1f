// Package chat serves the conversation to browsers over HTTP and WebSocket.
package chat

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samsaffron/gemchat/internal/conversation"
	"golang.org/x/time/rate"
)

//go:embed static
var staticFS embed.FS

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	sendBuffer   = 256
	maxFrameSize = 64 << 10
)

// Conversation is the state the server exposes. *conversation.Store implements it.
type Conversation interface {
	Send(ctx context.Context, text string) error
	Reset()
	Interrupt() bool
	Snapshot() conversation.State
	Subscribe(conversation.Observer) func()
}

// Options configures a Server.
type Options struct {
	App      string
	Provider string
	Model    string
	// Token, when set, is required as a bearer token or ?token= query parameter.
	Token string
	// EventRate and EventBurst bound client events per connection.
	EventRate  rate.Limit
	EventBurst int
}

// Server broadcasts one conversation to every connected client.
type Server struct {
	conv     Conversation
	opts     Options
	html     *htmlCache

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	clients   map[string]*client
	nextSeq   int64
	state     conversation.State
	haveState bool

	unsubscribe func()
}

type client struct {
	id      string
	conn    *websocket.Conn
	send    chan WireEvent
	limiter *rate.Limiter
	once    sync.Once
	done    chan struct{}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// NewServer subscribes to conv. Call Close to detach.
func NewServer(conv Conversation, opts Options) *Server {
	if opts.EventRate == 0 {
		opts.EventRate = rate.Limit(5)
	}
	if opts.EventBurst == 0 {
		opts.EventBurst = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		conv:     conv,
		opts:     opts,
		html:     newHTMLCache(NewRenderer().Render),
		ctx:      ctx,
		cancel:   cancel,
		clients:  make(map[string]*client),
		nextSeq:  1,
	}
	s.unsubscribe = conv.Subscribe(s.observe)

	snap := conv.Snapshot()
	s.mu.Lock()
	if !s.haveState {
		s.state = snap
		s.haveState = true
	}
	s.mu.Unlock()
	return s
}

// Close detaches from the conversation, cancels in-flight sends it started and drops clients.
func (s *Server) Close() {
	s.unsubscribe()
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		c.close()
		delete(s.clients, id)
	}
}

// HTTPHandler returns an http.Handler for the page, the socket and health checks.
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	static, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /", http.FileServerFS(static))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /chat/state", s.auth(s.handleState))
	mux.HandleFunc("GET /chat/ws", s.auth(s.handleSocket))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ev := s.snapshotLocked()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.withHTML(ev))
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrade(w, r)
	if err != nil {
		return
	}

	c := &client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan WireEvent, sendBuffer),
		limiter: rate.NewLimiter(s.opts.EventRate, s.opts.EventBurst),
		done:    make(chan struct{}),
	}

	// The snapshot and registration happen under one lock so no change is missed or duplicated.
	s.mu.Lock()
	c.send <- s.snapshotLocked()
	s.clients[c.id] = c
	count := len(s.clients)
	s.mu.Unlock()

	slog.Info("chat client connected", "client", c.id, "remote", r.RemoteAddr, "clients", count)

	go s.writeLoop(c)
	s.readLoop(c)

	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	c.close()
	slog.Info("chat client disconnected", "client", c.id)
}

func (s *Server) snapshotLocked() WireEvent {
	return WireEvent{
		Seq:      s.nextSeq - 1,
		Type:     EventSnapshot,
		App:      s.opts.App,
		Provider: s.opts.Provider,
		Model:    s.opts.Model,
		Entries:  toWireEntries(s.state.Entries, nil),
		Busy:     s.state.Busy,
	}
}

// observe runs under the conversation's notification lock and must not block.
// HTML is added later, in the write path.
func (s *Server) observe(c conversation.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Kind == conversation.ChangeReset {
		s.html.reset()
	}
	s.state = c.State
	s.haveState = true
	ev := ToWireEvent(s.nextSeq, c, nil)
	s.nextSeq++

	for id, cl := range s.clients {
		select {
		case cl.send <- ev:
		default:
			slog.Warn("chat client too slow, dropping", "client", id)
			delete(s.clients, id)
			cl.close()
		}
	}
}

func (s *Server) readLoop(c *client) {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var ev ClientEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("chat client read failed", "client", c.id, "err", err)
			}
			return
		}
		if !c.limiter.Allow() {
			s.reply(c, "Too many requests. Slow down and try again.")
			continue
		}
		s.handleClientEvent(c, ev)
	}
}

func (s *Server) handleClientEvent(c *client, ev ClientEvent) {
	switch ev.Type {
	case ClientMessage:
		go func() {
			err := s.conv.Send(s.ctx, ev.Text)
			if conversation.IsRejection(err) {
				s.reply(c, rejectionMessage(err))
			}
		}()
	case ClientReset:
		slog.Info("conversation reset", "client", c.id)
		s.conv.Reset()
	case ClientInterrupt:
		s.conv.Interrupt()
	default:
		s.reply(c, "Unknown event: "+ev.Type)
	}
}

func rejectionMessage(err error) string {
	if errors.Is(err, conversation.ErrBusy) {
		return "A response is already streaming."
	}
	return "Message is empty."
}

// reply sends an error event to one client.
func (s *Server) reply(c *client, message string) {
	select {
	case c.send <- WireEvent{Type: EventError, Message: message}:
	case <-c.done:
	default:
	}
}

func (s *Server) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			if err := writeEvent(c.conn, s.withHTML(ev)); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	token := strings.TrimSpace(s.opts.Token)
	if token == "" {
		return true
	}
	got := r.URL.Query().Get("token")
	if value := r.Header.Get("Authorization"); value != "" {
		const prefix = "Bearer "
		if !strings.HasPrefix(value, prefix) {
			return false
		}
		got = strings.TrimPrefix(value, prefix)
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(token)) == 1
}

// upgrader keeps gorilla's same-origin check: browsers may only connect from a
// page served by this host, while clients that send no Origin are allowed.
var upgrader = websocket.Upgrader{}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("chat socket upgrade refused", "remote", r.RemoteAddr, "origin", r.Header.Get("Origin"), "err", err)
	}
	return conn, err
}

// withHTML returns ev with rendered HTML on its settled model entries.
// Entries are copied because events are shared between clients.
func (s *Server) withHTML(ev WireEvent) WireEvent {
	if ev.Entry != nil {
		e := *ev.Entry
		s.html.fill(&e)
		ev.Entry = &e
	}
	if len(ev.Entries) > 0 {
		entries := make([]WireEntry, len(ev.Entries))
		copy(entries, ev.Entries)
		for i := range entries {
			s.html.fill(&entries[i])
		}
		ev.Entries = entries
	}
	return ev
}

func writeEvent(conn *websocket.Conn, e WireEvent) error {
	if conn == nil {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
