package llm

import (
	"context"
	"errors"
	"io"
)

type channelStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	events <-chan streamItem
}

type streamItem struct {
	chunk TextChunk
	err   error
}

// emitFunc hands one fragment to the consumer. It returns false once the stream is closed.
type emitFunc func(text string) bool

func newChunkStream(ctx context.Context, provider string, run func(context.Context, emitFunc) error) Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan streamItem, 16)
	go func() {
		defer close(ch)
		emit := func(text string) bool {
			if text == "" {
				return streamCtx.Err() == nil
			}
			select {
			case ch <- streamItem{chunk: TextChunk{Text: text}}:
				return true
			case <-streamCtx.Done():
				return false
			}
		}
		if err := run(streamCtx, emit); err != nil {
			select {
			case ch <- streamItem{err: wrapTransport(provider, err)}:
			case <-streamCtx.Done():
			}
		}
	}()
	return &channelStream{ctx: streamCtx, cancel: cancel, events: ch}
}

func (s *channelStream) Recv() (TextChunk, error) {
	// Non-blocking drain: consume any buffered chunk or error before checking ctx.Done().
	select {
	case item, ok := <-s.events:
		return s.unpack(item, ok)
	default:
	}

	select {
	case <-s.ctx.Done():
		return TextChunk{}, s.ctx.Err()
	case item, ok := <-s.events:
		return s.unpack(item, ok)
	}
}

func (s *channelStream) Close() error {
	s.cancel()
	return nil
}

func (s *channelStream) unpack(item streamItem, ok bool) (TextChunk, error) {
	if !ok {
		// A producer that stops because of cancellation may close without sending its error.
		if err := s.ctx.Err(); err != nil {
			return TextChunk{}, err
		}
		return TextChunk{}, io.EOF
	}
	if item.err != nil {
		return TextChunk{}, item.err
	}
	return item.chunk, nil
}

func wrapTransport(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if IsConfigurationError(err) {
		return err
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Provider: provider, Err: err}
}
