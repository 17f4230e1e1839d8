package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of one turn.
type State string

const (
	StateIdle                State = "idle"
	StateUserMessageAppended State = "user_message_appended"
	StateGenerating          State = "generating"
	StateStreaming           State = "streaming"
	StateCompleted           State = "completed"
	StateFailed              State = "failed"
)

var transitions = map[State][]State{
	StateIdle:                {StateUserMessageAppended, StateFailed},
	StateUserMessageAppended: {StateGenerating, StateFailed},
	StateGenerating:          {StateStreaming, StateCompleted, StateFailed},
	StateStreaming:           {StateStreaming, StateCompleted, StateFailed},
}

// Turn tracks one user message and its reply.
type Turn struct {
	ID        string
	SessionID string
	Transport string
	Started   time.Time

	mu    sync.Mutex
	state State
}

func newTurn(sessionID, transport string) *Turn {
	return &Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Transport: transport,
		Started:   time.Now(),
		state:     StateIdle,
	}
}

func (t *Turn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// advance moves the turn to next, refusing transitions the lifecycle does not allow.
func (t *Turn) advance(next State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, allowed := range transitions[t.state] {
		if allowed == next {
			t.state = next
			return nil
		}
	}
	return fmt.Errorf("turn %s: illegal transition %s -> %s", t.ID, t.state, next)
}
