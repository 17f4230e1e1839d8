package ai

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"google.golang.org/genai"
)

// GenAIBackend talks to the Gemini API directly. The client is created on
// first use and shared afterwards.
type GenAIBackend struct {
	apiKey string
	model  string

	once    sync.Once
	client  *genai.Client
	initErr error
}

func NewGenAIBackend(apiKey, model string) *GenAIBackend {
	return &GenAIBackend{apiKey: apiKey, model: model}
}

func (b *GenAIBackend) Configured() bool {
	return b != nil && b.apiKey != ""
}

func (b *GenAIBackend) getClient(ctx context.Context) (*genai.Client, error) {
	if !b.Configured() {
		return nil, ErrNotConfigured
	}
	b.once.Do(func() {
		b.client, b.initErr = genai.NewClient(context.WithoutCancel(ctx), &genai.ClientConfig{
			APIKey:  b.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if b.initErr != nil {
			b.initErr = fmt.Errorf("init gemini client: %w", b.initErr)
		}
	})
	return b.client, b.initErr
}

func (b *GenAIBackend) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		client, err := b.getClient(ctx)
		if err != nil {
			yield("", err)
			return
		}
		for resp, err := range client.Models.GenerateContentStream(ctx, b.model, toGenAIContents(req.Contents), toGenAIConfig(req)) {
			if err != nil {
				yield("", err)
				return
			}
			if blocked(resp) {
				yield("", ErrContentBlocked)
				return
			}
			if text := resp.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

func (b *GenAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	client, err := b.getClient(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.Models.GenerateContent(ctx, b.model, toGenAIContents(req.Contents), toGenAIConfig(req))
	if err != nil {
		return "", err
	}
	if blocked(resp) {
		return "", ErrContentBlocked
	}
	return resp.Text(), nil
}

func toGenAIContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		contents = append(contents, genai.NewContentFromText(turn.Text, genai.Role(turn.Role)))
	}
	return contents
}

func toGenAIConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.Params.MaxOutputTokens),
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.Params.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Params.Temperature)
	}
	if req.Params.TopP > 0 {
		cfg.TopP = genai.Ptr(req.Params.TopP)
	}
	return cfg
}

func blocked(resp *genai.GenerateContentResponse) bool {
	if resp == nil {
		return false
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return true
	}
	for _, cand := range resp.Candidates {
		if cand != nil && cand.FinishReason == genai.FinishReasonSafety {
			return true
		}
	}
	return false
}
