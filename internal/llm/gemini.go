package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const geminiName = "gemini"

// GeminiFactory creates chat sessions against the Gemini API.
type GeminiFactory struct {
	apiKey  string
	baseURL string
}

func NewGeminiFactory(apiKey, baseURL string) *GeminiFactory {
	return &GeminiFactory{apiKey: apiKey, baseURL: baseURL}
}

func (f *GeminiFactory) Name() string {
	return geminiName
}

// NewSession builds a genai client and a chat bound to model and systemInstruction.
// Nothing is constructed when the API key is absent.
func (f *GeminiFactory) NewSession(ctx context.Context, model, systemInstruction string) (Session, error) {
	if strings.TrimSpace(f.apiKey) == "" {
		return nil, missingCredential(geminiName, "set GEMINI_API_KEY or providers.gemini.api_key")
	}

	cc := &genai.ClientConfig{
		APIKey:  f.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if f.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: f.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, &TransportError{Provider: geminiName, Err: fmt.Errorf("create client: %w", err)}
	}

	var cfg *genai.GenerateContentConfig
	if strings.TrimSpace(systemInstruction) != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		}
	}
	chat, err := client.Chats.Create(ctx, model, cfg, nil)
	if err != nil {
		return nil, &TransportError{Provider: geminiName, Err: fmt.Errorf("create chat: %w", err)}
	}
	return &geminiSession{chat: chat}, nil
}

type geminiSession struct {
	chat *genai.Chat
}

// SendStream sends text on the chat. The chat records the turn in its own history
// once the stream has been fully consumed.
func (s *geminiSession) SendStream(ctx context.Context, text string) (Stream, error) {
	return newChunkStream(ctx, geminiName, func(ctx context.Context, emit emitFunc) error {
		for resp, err := range s.chat.SendMessageStream(ctx, genai.Part{Text: text}) {
			if err != nil {
				return err
			}
			if resp == nil {
				continue
			}
			if !emit(resp.Text()) {
				return ctx.Err()
			}
		}
		return nil
	}), nil
}
