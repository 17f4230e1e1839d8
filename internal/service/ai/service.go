package ai

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"quickcomm/internal/config"
	"quickcomm/internal/models"
	"quickcomm/internal/observability"
)

// Options tunes request shaping and generation.
type Options struct {
	MaxHistoryMessages int
	SystemPrompt       string
	Params             Params
}

// Service turns a transcript and a new message into a reply. Backend failures
// never escape: they become a single canned fragment.
type Service struct {
	backend Backend
	opts    Options
	logger  logrus.FieldLogger

	mu                sync.RWMutex
	systemInstruction string
}

func NewService(backend Backend, opts Options, logger logrus.FieldLogger) *Service {
	if opts.MaxHistoryMessages <= 0 {
		opts.MaxHistoryMessages = 20
	}
	if opts.Params.MaxOutputTokens <= 0 {
		opts.Params.MaxOutputTokens = 1024
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		backend:           backend,
		opts:              opts,
		logger:            logger.WithField("component", "ai"),
		systemInstruction: opts.SystemPrompt,
	}
}

// NewBackend picks the backend for the configured provider. Nothing is dialed here.
func NewBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	provCfg := cfg.ActiveProvider()
	if cfg.Generation.Provider == config.ProviderGemini {
		return NewGenAIBackend(provCfg.APIKey, provCfg.Model), nil
	}
	return NewEinoBackend(ctx, cfg.Generation.Provider, provCfg, cfg.Generation.MaxOutputTokens)
}

// OptionsFromConfig maps generation settings onto Options.
func OptionsFromConfig(cfg config.GenerationConfig) Options {
	return Options{
		MaxHistoryMessages: cfg.MaxHistoryMessages,
		SystemPrompt:       cfg.SystemPrompt,
		Params: Params{
			Temperature:     cfg.Temperature,
			TopP:            cfg.TopP,
			MaxOutputTokens: cfg.MaxOutputTokens,
		},
	}
}

// SetFAQs rebuilds the system instruction with the given known answers.
func (s *Service) SetFAQs(faqs []models.FAQ) {
	instruction := BuildSystemInstruction(s.opts.SystemPrompt, faqs)
	s.mu.Lock()
	s.systemInstruction = instruction
	s.mu.Unlock()
}

func (s *Service) SystemInstruction() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemInstruction
}

// GenerateReply streams the reply fragments for message given the prior
// history. The sequence is finite, yields at least one fragment and never
// reports an error.
func (s *Service) GenerateReply(ctx context.Context, history []models.Message, message string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if reply, ok := s.degenerate(message); ok {
			yield(reply)
			return
		}
		produced := false
		for text, err := range s.backend.Stream(ctx, s.request(history, message)) {
			if err != nil {
				yield(s.translate(err))
				return
			}
			if text == "" {
				continue
			}
			produced = true
			if !yield(text) {
				return
			}
		}
		if !produced {
			s.logger.Warn("no content received from backend")
			yield(ReplyRephrase)
		}
	}
}

// Generate is the non-streaming form of GenerateReply.
func (s *Service) Generate(ctx context.Context, history []models.Message, message string) string {
	if reply, ok := s.degenerate(message); ok {
		return reply
	}
	text, err := s.backend.Generate(ctx, s.request(history, message))
	if err != nil {
		return s.translate(err)
	}
	if text == "" {
		return ReplyRephrase
	}
	return text
}

// degenerate answers inputs that must not reach the backend.
func (s *Service) degenerate(message string) (string, bool) {
	if c, ok := s.backend.(interface{ Configured() bool }); ok && !c.Configured() {
		return s.translate(ErrNotConfigured), true
	}
	if strings.TrimSpace(message) == "" {
		return ReplyEmptyMessage, true
	}
	return "", false
}

func (s *Service) request(history []models.Message, message string) Request {
	contents := ShapeHistory(history, message, s.opts.MaxHistoryMessages)
	s.logger.WithFields(logrus.Fields{
		"history":  len(history),
		"contents": len(contents),
	}).Debug("generating reply")
	return Request{
		SystemInstruction: s.SystemInstruction(),
		Contents:          contents,
		Params:            s.opts.Params,
	}
}

func (s *Service) translate(err error) string {
	category := Classify(err)
	s.logger.WithField("category", category).WithError(err).Warn("generation failed")
	observability.RecordGenerationFailure(string(category))
	return CannedReply(category)
}
