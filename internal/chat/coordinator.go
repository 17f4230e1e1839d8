// Package chat runs conversation turns against the transcript store and the
// reply generator.
package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"quickcomm/internal/models"
	"quickcomm/internal/observability"
	"quickcomm/internal/worker"
)

var (
	// ErrInvalidInput rejects a blank session identifier or an empty message.
	ErrInvalidInput = errors.New("sessionId and message are required")
	// ErrCommitFailed means the reply was produced but could not be stored.
	ErrCommitFailed = errors.New("failed to store assistant reply")
)

// Transport labels used in logs and metrics.
const (
	TransportHTTP      = "http"
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
	TransportCLI       = "cli"
)

type TranscriptStore interface {
	Append(ctx context.Context, sessionID string, msg models.Message) error
	Read(ctx context.Context, sessionID string) ([]models.Message, error)
	Clear(ctx context.Context, sessionID string) (bool, error)
}

type ReplyGenerator interface {
	GenerateReply(ctx context.Context, history []models.Message, message string) iter.Seq[string]
}

// WholeReplyGenerator produces a reply in one call.
type WholeReplyGenerator interface {
	Generate(ctx context.Context, history []models.Message, message string) string
}

// OneShot adapts g to ReplyGenerator; the reply arrives as a single fragment.
func OneShot(g WholeReplyGenerator) ReplyGenerator {
	return oneShot{g}
}

type oneShot struct{ g WholeReplyGenerator }

func (o oneShot) GenerateReply(ctx context.Context, history []models.Message, message string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if reply := o.g.Generate(ctx, history, message); reply != "" {
			yield(reply)
		}
	}
}

// TurnRunner executes fn after every earlier job of the same session.
type TurnRunner interface {
	Submit(sessionID string, fn func()) (<-chan error, error)
}

type Options struct {
	// TurnTimeout bounds appending, reading and generation; zero means
	// unbounded. The final commit is not subject to it.
	TurnTimeout time.Duration
}

// commitTimeout bounds the assistant append once generation has ended.
const commitTimeout = 5 * time.Second

type Coordinator struct {
	store     TranscriptStore
	generator ReplyGenerator
	runner    TurnRunner
	opts      Options
	logger    logrus.FieldLogger
}

// NewCoordinator wires the turn pipeline. A nil runner runs turns on the
// caller's goroutine.
func NewCoordinator(store TranscriptStore, generator ReplyGenerator, runner TurnRunner, opts Options, logger logrus.FieldLogger) *Coordinator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Coordinator{
		store:     store,
		generator: generator,
		runner:    runner,
		opts:      opts,
		logger:    logger.WithField("component", "chat"),
	}
}

// WithGenerator returns a coordinator sharing c's store and runner that
// produces replies with g.
func (c *Coordinator) WithGenerator(g ReplyGenerator) *Coordinator {
	cp := *c
	cp.generator = g
	return &cp
}

// ValidateInput rejects a blank session identifier or an empty message. A
// whitespace-only message is accepted and answered by the generator.
func ValidateInput(sessionID, message string) error {
	if strings.TrimSpace(sessionID) == "" || message == "" {
		return ErrInvalidInput
	}
	return nil
}

// Reply runs a turn and returns the whole reply.
func (c *Coordinator) Reply(ctx context.Context, transport, sessionID, message string) (string, error) {
	return c.Stream(ctx, transport, sessionID, message, nil)
}

// Stream runs a turn, handing each fragment to relay as it is produced, and
// returns the committed reply. If ctx ends first the relay is closed and the
// turn still completes and commits in the background.
func (c *Coordinator) Stream(ctx context.Context, transport, sessionID, message string, relay Relay) (string, error) {
	if err := ValidateInput(sessionID, message); err != nil {
		return "", err
	}
	turn := newTurn(sessionID, transport)
	logger := c.logger.WithFields(logrus.Fields{
		"turn_id":    turn.ID,
		"session_id": sessionID,
		"transport":  transport,
	})
	gate := newRelayGate(relay, logger)

	var (
		reply   string
		turnErr error
	)
	run := func() {
		turnCtx := context.WithoutCancel(ctx)
		if c.opts.TurnTimeout > 0 {
			var cancel context.CancelFunc
			turnCtx, cancel = context.WithTimeout(turnCtx, c.opts.TurnTimeout)
			defer cancel()
		}
		reply, turnErr = c.runTurn(turnCtx, turn, message, gate, logger)
	}

	if c.runner == nil {
		run()
		return reply, turnErr
	}
	done, err := c.runner.Submit(sessionID, run)
	if err != nil {
		if errors.Is(err, worker.ErrDispatcherBusy) {
			observability.RecordQueueRejection()
		}
		logger.WithError(err).Warn("turn not accepted")
		return "", fmt.Errorf("submit turn: %w", err)
	}
	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("turn %s: %w", turn.ID, err)
		}
		return reply, turnErr
	case <-ctx.Done():
		gate.close()
		logger.Info("caller left; turn continues in background")
		return "", ctx.Err()
	}
}

func (c *Coordinator) runTurn(ctx context.Context, turn *Turn, message string, gate *relayGate, logger logrus.FieldLogger) (string, error) {
	outcome := "failed"
	defer func() {
		observability.RecordTurn(turn.Transport, outcome, time.Since(turn.Started))
	}()
	fail := func(err error) error {
		_ = turn.advance(StateFailed)
		logger.WithError(err).WithField("state", turn.State()).Error("turn failed")
		return err
	}

	if err := c.store.Append(ctx, turn.SessionID, models.NewMessage(models.RoleUser, message)); err != nil {
		return "", fail(fmt.Errorf("append user message: %w", err))
	}
	_ = turn.advance(StateUserMessageAppended)

	history, err := c.store.Read(ctx, turn.SessionID)
	if err != nil {
		return "", fail(fmt.Errorf("read history: %w", err))
	}
	prior := priorHistory(history, message)
	_ = turn.advance(StateGenerating)
	logger.WithField("history", len(prior)).Debug("generating reply")

	var b strings.Builder
	fragments := 0
	for fragment := range c.generator.GenerateReply(ctx, prior, message) {
		_ = turn.advance(StateStreaming)
		fragments++
		b.WriteString(fragment)
		gate.send(fragment)
	}
	reply := b.String()

	// the turn deadline may already have passed; the reply is still committed
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := c.store.Append(commitCtx, turn.SessionID, models.NewMessage(models.RoleAssistant, reply)); err != nil {
		outcome = "commit_failed"
		return reply, fail(fmt.Errorf("%w: %w", ErrCommitFailed, err))
	}
	_ = turn.advance(StateCompleted)
	outcome = "completed"
	logger.WithFields(logrus.Fields{
		"fragments": fragments,
		"duration":  time.Since(turn.Started).String(),
	}).Info("turn completed")
	return reply, nil
}

// priorHistory drops the just-appended user message from the tail of history.
func priorHistory(history []models.Message, message string) []models.Message {
	if n := len(history); n > 0 {
		last := history[n-1]
		if last.Role == models.RoleUser && last.Content == message {
			return history[:n-1]
		}
	}
	return history
}

// History returns the stored transcript of a session.
func (c *Coordinator) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidInput
	}
	history, err := c.store.Read(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return history, nil
}

// Clear deletes a session transcript and reports whether it existed.
func (c *Coordinator) Clear(ctx context.Context, sessionID string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, ErrInvalidInput
	}
	cleared, err := c.store.Clear(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("clear session: %w", err)
	}
	if cleared {
		c.logger.WithField("session_id", sessionID).Info("session cleared")
	}
	return cleared, nil
}
