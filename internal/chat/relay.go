package chat

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Relay delivers one fragment to the caller. A returned error closes the relay
// for the rest of the turn; generation and commit carry on.
type Relay func(fragment string) error

// relayGate guards a Relay so nothing is written after close returns.
type relayGate struct {
	mu     sync.Mutex
	relay  Relay
	closed bool
	logger logrus.FieldLogger
}

func newRelayGate(relay Relay, logger logrus.FieldLogger) *relayGate {
	return &relayGate{relay: relay, closed: relay == nil, logger: logger}
}

func (g *relayGate) send(fragment string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if err := g.relay(fragment); err != nil {
		g.closed = true
		g.logger.WithError(err).Info("relay closed, continuing without caller")
	}
}

func (g *relayGate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
