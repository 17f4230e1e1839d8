package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"quickcomm/internal/config"
	"quickcomm/internal/logging"
	"quickcomm/internal/models"
)

type fakeBackend struct {
	fragments []string
	err       error // returned after fragments
	text      string
	unset     bool

	calls    int
	requests []Request
}

func (f *fakeBackend) Configured() bool { return !f.unset }

func (f *fakeBackend) Stream(_ context.Context, req Request) iter.Seq2[string, error] {
	f.calls++
	f.requests = append(f.requests, req)
	return func(yield func(string, error) bool) {
		for _, frag := range f.fragments {
			if !yield(frag, nil) {
				return
			}
		}
		if f.err != nil {
			yield("", f.err)
		}
	}
}

func (f *fakeBackend) Generate(_ context.Context, req Request) (string, error) {
	f.calls++
	f.requests = append(f.requests, req)
	return f.text, f.err
}

func newTestService(backend Backend) *Service {
	return NewService(backend, Options{MaxHistoryMessages: 4}, logging.Discard())
}

func TestGenerateReplyRelaysFragmentsInOrder(t *testing.T) {
	backend := &fakeBackend{fragments: []string{"Hel", "", "lo ", "world"}}
	svc := newTestService(backend)

	got := slices.Collect(svc.GenerateReply(context.Background(), nil, "hi"))
	require.Equal(t, []string{"Hel", "lo ", "world"}, got)
	require.Equal(t, 1, backend.calls)
}

func TestGenerateReplyDegenerateInputsSkipBackend(t *testing.T) {
	backend := &fakeBackend{fragments: []string{"nope"}}
	svc := newTestService(backend)

	got := slices.Collect(svc.GenerateReply(context.Background(), nil, "   "))
	require.Equal(t, []string{ReplyEmptyMessage}, got)

	unset := &fakeBackend{unset: true}
	got = slices.Collect(newTestService(unset).GenerateReply(context.Background(), nil, "hello"))
	require.Equal(t, []string{ReplyTroubleConnecting}, got)

	require.Zero(t, backend.calls)
	require.Zero(t, unset.calls)
}

func TestGenerateReplyAbsorbsFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"rate limit", errors.New("Rate limit exceeded for project"), ReplyOverwhelmed},
		{"quota", errors.New("quota exhausted"), ReplyOverwhelmed},
		{"model missing", errors.New("models/gemini-x is not found"), ReplyModelUpdating},
		{"bad key", errors.New("API key not valid"), ReplyTroubleConnecting},
		{"safety", errors.New("blocked for safety reasons"), ReplyCannotRespond},
		{"blocked sentinel", fmt.Errorf("stream: %w", ErrContentBlocked), ReplyCannotRespond},
		{"api error 429", genai.APIError{Code: 429, Message: "slow down"}, ReplyOverwhelmed},
		{"api error 403", genai.APIError{Code: 403, Message: "denied"}, ReplyTroubleConnecting},
		{"other", errors.New("connection reset"), ReplyGenericFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(&fakeBackend{err: tc.err})
			got := slices.Collect(svc.GenerateReply(context.Background(), nil, "hi"))
			require.Equal(t, []string{tc.want}, got)
		})
	}
}

func TestGenerateReplyMidStreamFailureKeepsFragments(t *testing.T) {
	svc := newTestService(&fakeBackend{fragments: []string{"Partial "}, err: errors.New("rate limit")})
	got := slices.Collect(svc.GenerateReply(context.Background(), nil, "hi"))
	require.Equal(t, []string{"Partial ", ReplyOverwhelmed}, got)
}

func TestGenerateReplyEmptyStream(t *testing.T) {
	svc := newTestService(&fakeBackend{})
	got := slices.Collect(svc.GenerateReply(context.Background(), nil, "hi"))
	require.Equal(t, []string{ReplyRephrase}, got)
}

func TestGenerateReplyStopsWhenConsumerStops(t *testing.T) {
	svc := newTestService(&fakeBackend{fragments: []string{"a", "b", "c"}})
	var got []string
	for frag := range svc.GenerateReply(context.Background(), nil, "hi") {
		got = append(got, frag)
		if len(got) == 2 {
			break
		}
	}
	require.Equal(t, []string{"a", "b"}, got)
}

func TestGenerateNonStreaming(t *testing.T) {
	backend := &fakeBackend{text: "All good"}
	svc := newTestService(backend)
	require.Equal(t, "All good", svc.Generate(context.Background(), nil, "hi"))

	backend.text = ""
	require.Equal(t, ReplyRephrase, svc.Generate(context.Background(), nil, "hi"))

	backend.err = errors.New("HTTP 404")
	require.Equal(t, ReplyModelUpdating, svc.Generate(context.Background(), nil, "hi"))

	require.Equal(t, ReplyEmptyMessage, svc.Generate(context.Background(), nil, ""))
}

func TestRequestShapingAndSystemInstruction(t *testing.T) {
	backend := &fakeBackend{fragments: []string{"ok"}}
	svc := newTestService(backend)
	svc.SetFAQs([]models.FAQ{{Question: "Do you ship abroad?", Answer: "Yes, to 40 countries."}})

	history := []models.Message{
		{Role: models.RoleUser, Content: "oldest"},
		{Role: models.RoleAssistant, Content: "dropped by window"},
		{Role: models.RoleSystem, Content: "internal note"},
		{Role: models.RoleUser, Content: "  "},
		{Role: models.RoleAssistant, Content: "answer"},
		{Role: models.RoleUser, Content: "question"},
	}
	_ = slices.Collect(svc.GenerateReply(context.Background(), history, "new"))

	require.Len(t, backend.requests, 1)
	req := backend.requests[0]
	require.Equal(t, []Turn{
		{Role: TurnModel, Text: "answer"},
		{Role: TurnUser, Text: "question"},
		{Role: TurnUser, Text: "new"},
	}, req.Contents)
	require.True(t, strings.HasPrefix(req.SystemInstruction, DefaultSystemPrompt))
	require.Contains(t, req.SystemInstruction, "Do you ship abroad?")
	require.Equal(t, 1024, req.Params.MaxOutputTokens)
}

func TestClassifyOrder(t *testing.T) {
	require.Equal(t, CategoryNotConfigured, Classify(ErrNotConfigured))
	require.Equal(t, CategoryModelUnavailable, Classify(genai.APIError{Code: 404}))
	require.Equal(t, CategoryAuth, Classify(genai.APIError{Code: 401}))
	require.Equal(t, CategoryUnclassified, Classify(errors.New("boom")))
	require.Equal(t, Category(""), Classify(nil))
}

func TestEinoBackendWithoutKeyIsNotConfigured(t *testing.T) {
	backend, err := NewEinoBackend(context.Background(), "openai", config.ProviderConfig{Model: "gpt-4o-mini"}, 0)
	require.NoError(t, err)
	require.False(t, backend.Configured())
	for _, err := range backend.Stream(context.Background(), Request{}) {
		require.ErrorIs(t, err, ErrNotConfigured)
	}
	_, err = backend.Generate(context.Background(), Request{})
	require.ErrorIs(t, err, ErrNotConfigured)
}
