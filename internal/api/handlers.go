package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"quickcomm/internal/chat"
	"quickcomm/internal/config"
	"quickcomm/internal/logging"
	"quickcomm/internal/models"
	"quickcomm/internal/observability"
	"quickcomm/internal/worker"
)

const ServiceName = "quick-comm-backend"

// ChatService runs turns and exposes session transcripts.
type ChatService interface {
	Reply(ctx context.Context, transport, sessionID, message string) (string, error)
	Stream(ctx context.Context, transport, sessionID, message string, relay chat.Relay) (string, error)
	History(ctx context.Context, sessionID string) ([]models.Message, error)
	Clear(ctx context.Context, sessionID string) (bool, error)
}

type FAQLister interface {
	List(ctx context.Context) ([]models.FAQ, error)
}

// Pinger reports whether a backing service answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type WorkerStats interface {
	Stats() worker.Stats
}

// Handler wires HTTP routes to the chat coordinator.
type Handler struct {
	chat     ChatService
	faqs     FAQLister
	realtime http.Handler
	logger   logrus.FieldLogger
	started  time.Time

	store   Pinger
	workers WorkerStats
}

// NewHandler constructs a Handler instance. faqs and realtime may be nil.
func NewHandler(chatService ChatService, faqs FAQLister, realtime http.Handler, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		chat:     chatService,
		faqs:     faqs,
		realtime: realtime,
		logger:   logger.WithField("component", "api"),
		started:  time.Now(),
	}
}

// WithDependencies adds the transcript store and the worker pool to the
// health reports. Either may be nil.
func (h *Handler) WithDependencies(store Pinger, workers WorkerStats) *Handler {
	h.store = store
	h.workers = workers
	return h
}

// NewRouter builds the gin engine with the shared middleware stack and all routes.
func NewRouter(cfg config.BasicConfig, h *Handler, logger logrus.FieldLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware(logger), Metrics(), CORS(cfg.AllowedOrigins))
	var limiter *RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	h.RegisterRoutes(router, limiter.Middleware())
	return router
}

// RegisterRoutes attaches all HTTP routes to the router. limit guards the
// endpoints that start turns.
func (h *Handler) RegisterRoutes(router *gin.Engine, limit gin.HandlerFunc) {
	router.GET("/", h.home)
	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	if h.realtime != nil {
		router.GET("/socket", limit, gin.WrapH(h.realtime))
		router.GET("/ws", limit, gin.WrapH(h.realtime))
	}

	api := router.Group("/api")
	api.GET("/health", h.apiHealth)
	api.GET("/faqs", h.listFAQs)
	api.POST("/chat", limit, h.chatReply)
	api.POST("/chat/stream", limit, h.chatStream)
	api.GET("/session/:sessionId", h.getSessionHistory)
	api.DELETE("/session/:sessionId", h.clearSession)
	api.GET("/chat/session/:sessionId", h.getSessionHistory)
	api.DELETE("/chat/session/:sessionId", h.clearSession)
}

func (h *Handler) home(c *gin.Context) {
	c.String(http.StatusOK, "quick comm backend up and running")
}

func (h *Handler) health(c *gin.Context) {
	body := gin.H{
		"status":  "health check successful",
		"service": ServiceName,
		"uptime":  time.Since(h.started).Seconds(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	}
	h.addDependencies(c.Request.Context(), body)
	c.JSON(http.StatusOK, body)
}

func (h *Handler) apiHealth(c *gin.Context) {
	body := gin.H{"status": "healthy", "service": ServiceName}
	h.addDependencies(c.Request.Context(), body)
	c.JSON(http.StatusOK, body)
}

const pingTimeout = 2 * time.Second

func (h *Handler) addDependencies(ctx context.Context, body gin.H) {
	if h.store != nil {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := h.store.Ping(pctx); err != nil {
			h.logger.WithError(err).Warn("redis health check failed")
			body["redis"] = "unavailable"
		} else {
			body["redis"] = "ok"
		}
	}
	if h.workers != nil {
		body["workers"] = h.workers.Stats()
	}
}

func (h *Handler) listFAQs(c *gin.Context) {
	faqs := []models.FAQ{}
	if h.faqs != nil {
		var err error
		faqs, err = h.faqs.List(c.Request.Context())
		if err != nil {
			h.logger.WithError(err).Error("list faqs failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load faqs"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"faqs": faqs})
}

// Chat interface
type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// errorStatus maps a turn error to an HTTP status and a client-safe message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		return http.StatusBadRequest, chat.ErrInvalidInput.Error()
	case errors.Is(err, worker.ErrDispatcherBusy):
		return http.StatusTooManyRequests, "server is busy, please retry"
	case errors.Is(err, worker.ErrDispatcherStopped):
		return http.StatusServiceUnavailable, "server is shutting down"
	default:
		return http.StatusInternalServerError, "failed to process message"
	}
}

func (h *Handler) chatReply(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	reply, err := h.chat.Reply(c.Request.Context(), chat.TransportHTTP, req.SessionID, req.Message)
	if err != nil {
		status, msg := errorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.WithError(err).WithField("session_id", req.SessionID).Error("chat failed")
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": reply})
}

func (h *Handler) chatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := chat.ValidateInput(req.SessionID, req.Message); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// SSE Request construction
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	reply, err := h.chat.Stream(c.Request.Context(), chat.TransportSSE, req.SessionID, req.Message, func(chunk string) error {
		return sendEvent("stream", gin.H{"sessionId": req.SessionID, "chunk": chunk})
	})
	if err != nil {
		if c.Request.Context().Err() != nil {
			// client is gone; the turn finishes on its own
			return
		}
		_, msg := errorStatus(err)
		h.logger.WithError(err).WithField("session_id", req.SessionID).Warn("stream failed")
		_ = sendEvent("error", gin.H{"error": msg})
		return
	}
	_ = sendEvent("message", gin.H{"sessionId": req.SessionID, "message": reply})
}

func (h *Handler) getSessionHistory(c *gin.Context) {
	sessionID := c.Param("sessionId")
	history, err := h.chat.History(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
			return
		}
		h.logger.WithError(err).WithField("session_id", sessionID).Error("fetch history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch history"})
		return
	}
	c.JSON(http.StatusOK, models.SessionHistory{SessionID: sessionID, History: history})
}

func (h *Handler) clearSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	cleared, err := h.chat.Clear(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
			return
		}
		h.logger.WithError(err).WithField("session_id", sessionID).Error("clear session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "cleared": cleared})
}
