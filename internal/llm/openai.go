package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openaiName = "openai"

// OpenAIFactory creates sessions against the OpenAI chat completions API,
// or any compatible endpoint when a base URL is configured.
type OpenAIFactory struct {
	apiKey  string
	baseURL string
}

func NewOpenAIFactory(apiKey, baseURL string) *OpenAIFactory {
	return &OpenAIFactory{apiKey: apiKey, baseURL: baseURL}
}

func (f *OpenAIFactory) Name() string {
	return openaiName
}

func (f *OpenAIFactory) NewSession(ctx context.Context, model, systemInstruction string) (Session, error) {
	if strings.TrimSpace(f.apiKey) == "" {
		return nil, missingCredential(openaiName, "set OPENAI_API_KEY or providers.openai.api_key")
	}
	opts := []option.RequestOption{option.WithAPIKey(f.apiKey)}
	if f.baseURL != "" {
		opts = append(opts, option.WithBaseURL(f.baseURL))
	}
	client := openai.NewClient(opts...)

	var history []openai.ChatCompletionMessageParamUnion
	if strings.TrimSpace(systemInstruction) != "" {
		history = append(history, openai.SystemMessage(systemInstruction))
	}
	return &openaiSession{client: &client, model: model, history: history}, nil
}

type openaiSession struct {
	client *openai.Client
	model  string

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
}

func (s *openaiSession) SendStream(ctx context.Context, text string) (Stream, error) {
	s.mu.Lock()
	messages := append([]openai.ChatCompletionMessageParamUnion(nil), s.history...)
	s.mu.Unlock()
	user := openai.UserMessage(text)
	messages = append(messages, user)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(s.model),
		Messages: messages,
	}

	return newChunkStream(ctx, openaiName, func(ctx context.Context, emit emitFunc) error {
		stream := s.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		var reply strings.Builder
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			reply.WriteString(delta)
			if !emit(delta) {
				return ctx.Err()
			}
		}
		if err := stream.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		s.history = append(s.history, user, openai.AssistantMessage(reply.String()))
		s.mu.Unlock()
		return nil
	}), nil
}
