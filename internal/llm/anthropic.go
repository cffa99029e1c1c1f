package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	anthropicName      = "anthropic"
	anthropicMaxTokens = 4096
)

// AnthropicFactory creates sessions against the Anthropic Messages API.
type AnthropicFactory struct {
	apiKey  string
	baseURL string
}

func NewAnthropicFactory(apiKey, baseURL string) *AnthropicFactory {
	return &AnthropicFactory{apiKey: apiKey, baseURL: baseURL}
}

func (f *AnthropicFactory) Name() string {
	return anthropicName
}

func (f *AnthropicFactory) NewSession(ctx context.Context, model, systemInstruction string) (Session, error) {
	if strings.TrimSpace(f.apiKey) == "" {
		return nil, missingCredential(anthropicName, "set ANTHROPIC_API_KEY or providers.anthropic.api_key")
	}
	opts := []option.RequestOption{option.WithAPIKey(f.apiKey)}
	if f.baseURL != "" {
		opts = append(opts, option.WithBaseURL(f.baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &anthropicSession{
		client: &client,
		model:  model,
		system: systemInstruction,
	}, nil
}

// anthropicSession keeps the turn history itself; the Messages API is stateless.
type anthropicSession struct {
	client *anthropic.Client
	model  string
	system string

	mu      sync.Mutex
	history []anthropic.MessageParam
}

func (s *anthropicSession) SendStream(ctx context.Context, text string) (Stream, error) {
	s.mu.Lock()
	messages := append([]anthropic.MessageParam(nil), s.history...)
	s.mu.Unlock()
	user := anthropic.NewUserMessage(anthropic.NewTextBlock(text))
	messages = append(messages, user)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  messages,
	}
	if strings.TrimSpace(s.system) != "" {
		params.System = []anthropic.TextBlockParam{{Text: s.system}}
	}

	return newChunkStream(ctx, anthropicName, func(ctx context.Context, emit emitFunc) error {
		stream := s.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		var reply strings.Builder
		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			td, ok := delta.Delta.AsAny().(anthropic.TextDelta)
			if !ok {
				continue
			}
			reply.WriteString(td.Text)
			if !emit(td.Text) {
				return ctx.Err()
			}
		}
		if err := stream.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		s.history = append(s.history, user, anthropic.NewAssistantMessage(anthropic.NewTextBlock(reply.String())))
		s.mu.Unlock()
		return nil
	}), nil
}
