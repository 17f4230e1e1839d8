package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"quickcomm/internal/config"
)

// EinoBackend adapts any eino chat model (OpenAI-compatible, Claude, Gemini).
type EinoBackend struct {
	chatModel model.BaseChatModel
}

// NewEinoBackend builds the chat model for provider. A missing API key yields
// a backend that reports ErrNotConfigured on use.
func NewEinoBackend(ctx context.Context, provider string, provCfg config.ProviderConfig, maxTokens int) (*EinoBackend, error) {
	if provCfg.APIKey == "" {
		return &EinoBackend{}, nil
	}
	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case config.ProviderOpenAI:
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case config.ProviderEinoGemini:
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  provCfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if cerr != nil {
			return nil, fmt.Errorf("new gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case config.ProviderClaude:
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		if maxTokens <= 0 {
			maxTokens = 1024
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: maxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return &EinoBackend{chatModel: chatModel}, nil
}

// NewEinoBackendFromModel wraps an existing chat model.
func NewEinoBackendFromModel(m model.BaseChatModel) *EinoBackend {
	return &EinoBackend{chatModel: m}
}

func (b *EinoBackend) Configured() bool {
	return b != nil && b.chatModel != nil
}

func (b *EinoBackend) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !b.Configured() {
			yield("", ErrNotConfigured)
			return
		}
		reader, err := b.chatModel.Stream(ctx, toSchemaMessages(req), toModelOptions(req.Params)...)
		if err != nil {
			yield("", fmt.Errorf("generate stream: %w", err))
			return
		}
		defer reader.Close()
		for {
			chunk, err := reader.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if chunk == nil || chunk.Content == "" {
				continue
			}
			if !yield(chunk.Content, nil) {
				return
			}
		}
	}
}

func (b *EinoBackend) Generate(ctx context.Context, req Request) (string, error) {
	if !b.Configured() {
		return "", ErrNotConfigured
	}
	resp, err := b.chatModel.Generate(ctx, toSchemaMessages(req), toModelOptions(req.Params)...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return resp.Content, nil
}

func toSchemaMessages(req Request) []*schema.Message {
	messages := make([]*schema.Message, 0, len(req.Contents)+1)
	if req.SystemInstruction != "" {
		messages = append(messages, schema.SystemMessage(req.SystemInstruction))
	}
	for _, turn := range req.Contents {
		role := schema.User
		if turn.Role == TurnModel {
			role = schema.Assistant
		}
		messages = append(messages, &schema.Message{Role: role, Content: turn.Text})
	}
	return messages
}

func toModelOptions(p Params) []model.Option {
	var opts []model.Option
	if p.Temperature > 0 {
		opts = append(opts, model.WithTemperature(p.Temperature))
	}
	if p.TopP > 0 {
		opts = append(opts, model.WithTopP(p.TopP))
	}
	if p.MaxOutputTokens > 0 {
		opts = append(opts, model.WithMaxTokens(p.MaxOutputTokens))
	}
	return opts
}
