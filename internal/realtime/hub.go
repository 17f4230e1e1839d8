// Package realtime serves chat turns over WebSocket connections.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quickcomm/internal/chat"
	"quickcomm/internal/observability"
	"quickcomm/internal/worker"
)

// Event names carried in the frame envelope.
const (
	EventMessage = "message"
	EventStream  = "stream"
	EventError   = "error"
	// EventJoinRoom is accepted for clients that announce a room first.
	EventJoinRoom = "join_room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
)

// Frame is the JSON envelope of every WebSocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type messagePayload struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type ChatService interface {
	Stream(ctx context.Context, transport, sessionID, message string, relay chat.Relay) (string, error)
}

// Hub upgrades HTTP requests and tracks live connections.
type Hub struct {
	chat     ChatService
	upgrader websocket.Upgrader
	logger   logrus.FieldLogger

	mu    sync.Mutex
	conns map[string]*conn
	wg    sync.WaitGroup
}

// NewHub builds a Hub. Origins outside allowedOrigins are refused at the
// handshake; an empty list accepts any origin.
func NewHub(chatService ChatService, allowedOrigins []string, logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	h := &Hub{
		chat:   chatService,
		logger: logger.WithField("component", "realtime"),
		conns:  make(map[string]*conn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
	return h
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.WithError(err).WithField("origin", r.Header.Get("Origin")).Warn("websocket upgrade rejected")
		return
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		hub:    h,
		ctx:    ctx,
		cancel: cancel,
	}
	c.logger = h.logger.WithField("conn_id", c.id)

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	h.wg.Add(1)
	observability.ConnectionOpened()
	c.logger.Info("websocket connected")

	go c.pingLoop()
	c.readLoop()
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every client and waits for their read loops to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
	h.wg.Wait()
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	_, ok := h.conns[c.id]
	delete(h.conns, c.id)
	h.mu.Unlock()
	if ok {
		observability.ConnectionClosed()
		h.wg.Done()
	}
}

type conn struct {
	id     string
	ws     *websocket.Conn
	hub    *Hub
	logger logrus.FieldLogger

	// ctx ends when the client goes away; running turns keep committing.
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	turns   sync.WaitGroup
}

func (c *conn) readLoop() {
	defer func() {
		c.cancel()
		c.turns.Wait()
		_ = c.ws.Close()
		c.hub.remove(c)
		c.logger.Info("websocket disconnected")
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Warn("websocket read failed")
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.logger.WithError(err).Debug("undecodable frame")
			_ = c.send(EventError, fields{"error": "invalid frame"})
			continue
		}
		switch frame.Event {
		case EventMessage:
			var payload messagePayload
			if err := json.Unmarshal(frame.Data, &payload); err != nil {
				_ = c.send(EventError, fields{"error": chat.ErrInvalidInput.Error()})
				continue
			}
			c.turns.Add(1)
			go func() {
				defer c.turns.Done()
				c.handleMessage(payload)
			}()
		case EventJoinRoom:
			// Replies go back on the connection that asked, so joining
			// needs no state; the room name is only checked and logged.
			var room string
			if err := json.Unmarshal(frame.Data, &room); err != nil || strings.TrimSpace(room) == "" {
				_ = c.send(EventError, fields{"error": "room name is required"})
				continue
			}
			c.logger.WithField("room", room).Debug("joined room")
		default:
			_ = c.send(EventError, fields{"error": "unknown event: " + frame.Event})
		}
	}
}

func (c *conn) handleMessage(p messagePayload) {
	reply, err := c.hub.chat.Stream(c.ctx, chat.TransportWebSocket, p.SessionID, p.Message, func(chunk string) error {
		return c.send(EventStream, fields{"sessionId": p.SessionID, "chunk": chunk})
	})
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		if !errors.Is(err, chat.ErrInvalidInput) {
			c.logger.WithError(err).WithField("session_id", p.SessionID).Warn("turn failed")
		}
		_ = c.send(EventError, fields{"error": clientMessage(err)})
		return
	}
	_ = c.send(EventMessage, fields{"sessionId": p.SessionID, "message": reply})
}

func (c *conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// fields is the payload of outbound frames.
type fields map[string]string

func (c *conn) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(Frame{Event: event, Data: data})
}

func (c *conn) closeWith(code int, reason string) {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	_ = c.ws.Close()
}

// clientMessage hides internal failures behind a generic message.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		return chat.ErrInvalidInput.Error()
	case errors.Is(err, worker.ErrDispatcherBusy):
		return "server is busy, please retry"
	case errors.Is(err, worker.ErrDispatcherStopped):
		return "server is shutting down"
	default:
		return "failed to process message"
	}
}
