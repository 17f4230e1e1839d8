package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"quickcomm/internal/config"
)

var debugEnabled = strings.EqualFold(os.Getenv("QUICKCOMM_WORKER_DEBUG"), "1")

// New builds the process logger from config.
func New(cfg config.LoggingConfig, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	if out != nil {
		logger.SetOutput(out)
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if debugEnabled && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// GinMiddleware logs one line per request.
func GinMiddleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"latency":  time.Since(start).String(),
			"clientIP": c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request failed")
		case c.Writer.Status() >= 400:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}
