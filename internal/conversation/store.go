// Package conversation folds streamed model output into an ordered chat log.
package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samsaffron/gemchat/internal/llm"
)

// Gateway is the remote side of a conversation.
type Gateway interface {
	Send(ctx context.Context, text string) (llm.Stream, error)
	Reset()
}

// Options configures a Store.
type Options struct {
	WelcomeMessage string
	// CredentialEnv lists the environment variables named in the missing-credential message.
	CredentialEnv []string
	Now           func() time.Time
}

// exchange tracks one in-flight Send. Reset detaches it by clearing Store.active.
type exchange struct {
	seq     uint64
	entryID string
	cancel  context.CancelFunc
}

// Store holds the single conversation and serializes exchanges with a busy gate.
type Store struct {
	gateway Gateway
	opts    Options

	mu       sync.Mutex
	entries  []Entry
	busy     bool
	nextID   uint64
	epoch    uint64
	active   *exchange
	pending  []Change
	watchers map[int]Observer
	nextObs  int

	// notifyMu is acquired before mu is released so observers see changes in mutation order.
	notifyMu sync.Mutex
}

func NewStore(gw Gateway, opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{
		gateway:  gw,
		opts:     opts,
		watchers: make(map[int]Observer),
	}
	s.entries = []Entry{s.welcomeLocked()}
	return s
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Store) Subscribe(obs Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.watchers[id] = obs
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Busy reports whether an exchange is in flight.
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Send runs one exchange to completion. Remote failures end up in the model
// entry; only *ValidationError and ErrBusy are returned.
func (s *Store) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return &ValidationError{Reason: "message is empty"}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.epoch++
	user := s.newEntryLocked(RoleUser, text)
	s.entries = append(s.entries, user)
	s.recordLocked(ChangeAppended, user)
	s.busy = true
	s.recordLocked(ChangeBusy, Entry{})
	reply := s.newEntryLocked(RoleModel, "")
	reply.Streaming = true
	s.entries = append(s.entries, reply)
	s.recordLocked(ChangeAppended, reply)
	ex := &exchange{seq: s.epoch, entryID: reply.ID, cancel: cancel}
	s.active = ex
	s.flushLocked()

	defer s.release(ex)

	slog.Debug("conversation: exchange started", "exchange", ex.seq, "entry", reply.ID)

	stream, err := s.gateway.Send(ctx, text)
	if err != nil {
		s.fail(ctx, ex, err)
		return nil
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			s.settle(ex, func(e *Entry) { e.Streaming = false })
			slog.Debug("conversation: exchange finished", "exchange", ex.seq, "entry", reply.ID)
			return nil
		}
		if err != nil {
			s.fail(ctx, ex, err)
			return nil
		}
		s.appendText(reply.ID, chunk.Text)
	}
}

// Interrupt cancels the in-flight exchange, keeping whatever text has arrived.
// It reports whether there was anything to cancel.
func (s *Store) Interrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return false
	}
	s.active.cancel()
	return true
}

// Reset replaces the log with a fresh welcome entry and drops the remote session.
// An in-flight exchange is detached, not cancelled: its later updates are ignored.
func (s *Store) Reset() {
	s.mu.Lock()
	if s.active != nil {
		slog.Debug("conversation: detaching in-flight exchange", "exchange", s.active.seq)
	}
	s.active = nil
	s.busy = false
	s.entries = []Entry{s.welcomeLocked()}
	s.gateway.Reset()
	s.recordLocked(ChangeReset, Entry{})
	s.flushLocked()
}

func (s *Store) appendText(id, text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	s.updateLocked(id, func(e *Entry) { e.Text += text })
	s.flushLocked()
}

// settle applies the terminal update and releases the busy gate in one step.
func (s *Store) settle(ex *exchange, mutate func(*Entry)) {
	s.mu.Lock()
	released := s.active == ex
	if released {
		s.active = nil
		s.busy = false
	}
	s.updateLocked(ex.entryID, mutate)
	if released {
		s.recordLocked(ChangeBusy, Entry{})
	}
	s.flushLocked()
}

// release is deferred by Send. It frees the busy gate only if settle has not
// already done so and no Reset has detached the exchange.
func (s *Store) release(ex *exchange) {
	s.mu.Lock()
	if s.active == ex {
		s.active = nil
		s.busy = false
		s.recordLocked(ChangeBusy, Entry{})
	}
	s.flushLocked()
}

func (s *Store) fail(ctx context.Context, ex *exchange, err error) {
	interrupted := ctx.Err() != nil && isCancellation(err)
	if interrupted {
		slog.Info("conversation: exchange cancelled", "exchange", ex.seq, "entry", ex.entryID)
	} else {
		slog.Warn("conversation: exchange failed", "exchange", ex.seq, "entry", ex.entryID, "err", err)
	}

	message := FailureMessage(err, s.opts.CredentialEnv)
	s.settle(ex, func(e *Entry) {
		switch {
		case interrupted && e.Text == "":
			e.Text = cancelledMessage
		case interrupted:
		default:
			e.Text = message
		}
		e.Streaming = false
		e.Failed = true
	})
}

// updateLocked mutates the entry with the given id. Missing ids and failed
// entries are left alone.
func (s *Store) updateLocked(id string, mutate func(*Entry)) {
	for i := range s.entries {
		if s.entries[i].ID != id {
			continue
		}
		if s.entries[i].Failed {
			return
		}
		mutate(&s.entries[i])
		s.recordLocked(ChangeUpdated, s.entries[i])
		return
	}
}

func (s *Store) newEntryLocked(role Role, text string) Entry {
	s.nextID++
	return Entry{
		ID:        "msg-" + strconv.FormatUint(s.nextID, 10),
		Role:      role,
		Text:      text,
		Timestamp: s.opts.Now(),
	}
}

func (s *Store) welcomeLocked() Entry {
	s.nextID++
	return Entry{
		ID:        "welcome-" + strconv.FormatUint(s.nextID, 10),
		Role:      RoleModel,
		Text:      s.opts.WelcomeMessage,
		Timestamp: s.opts.Now(),
	}
}

func (s *Store) stateLocked() State {
	return State{Entries: s.entries, Busy: s.busy}.clone()
}

func (s *Store) recordLocked(kind ChangeKind, e Entry) {
	if len(s.watchers) == 0 {
		return
	}
	s.pending = append(s.pending, Change{Kind: kind, Entry: e, State: s.stateLocked()})
}

// flushLocked releases mu and hands pending changes to observers.
func (s *Store) flushLocked() {
	changes := s.pending
	s.pending = nil
	var watchers []Observer
	if len(changes) > 0 {
		watchers = make([]Observer, 0, len(s.watchers))
		for _, obs := range s.watchers {
			watchers = append(watchers, obs)
		}
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, c := range changes {
		for _, obs := range watchers {
			obs(c)
		}
	}
}

// IsRejection reports whether err is one of the errors Send returns without touching state.
func IsRejection(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrBusy)
}
