// Package transcript keeps the per-session conversation log in Redis.
package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"quickcomm/internal/models"
	"quickcomm/internal/observability"
	"quickcomm/internal/redis"
)

var (
	// ErrStoreUnavailable wraps every failure to reach Redis.
	ErrStoreUnavailable = errors.New("transcript store unavailable")
	// ErrInvalidMessage rejects messages that cannot be stored.
	ErrInvalidMessage = errors.New("invalid transcript message")
)

const DefaultKeyPrefix = "session:"

// Options bounds what a Store keeps.
type Options struct {
	KeyPrefix  string
	HistoryMax int
	TTL        time.Duration
}

// Store is a bounded, append-only transcript per session.
type Store struct {
	client *redis.Client
	opts   Options
	logger logrus.FieldLogger
}

func NewStore(client *redis.Client, opts Options, logger logrus.FieldLogger) *Store {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.HistoryMax <= 0 {
		opts.HistoryMax = 200
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{client: client, opts: opts, logger: logger.WithField("component", "transcript")}
}

func (s *Store) key(sessionID string) string {
	return s.opts.KeyPrefix + sessionID
}

// Append pushes msg and trims the list to the newest HistoryMax entries in one
// MULTI/EXEC.
func (s *Store) Append(ctx context.Context, sessionID string, msg models.Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, msg.Role)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	conn, err := s.client.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	key := s.key(sessionID)
	_, err = conn.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.LTrim(ctx, key, int64(-s.opts.HistoryMax), -1)
		if s.opts.TTL > 0 {
			pipe.Expire(ctx, key, s.opts.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: append %s: %w", ErrStoreUnavailable, sessionID, err)
	}
	return nil
}

// Read returns the transcript oldest first. Entries that fail to decode are skipped.
func (s *Store) Read(ctx context.Context, sessionID string) ([]models.Message, error) {
	conn, err := s.client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	raw, err := conn.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStoreUnavailable, sessionID, err)
	}
	history := make([]models.Message, 0, len(raw))
	for i, entry := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil || !msg.Role.Valid() {
			s.logger.WithFields(logrus.Fields{
				"session_id": sessionID,
				"index":      i,
			}).WithError(err).Warn("skipping malformed transcript entry")
			observability.RecordTranscriptDecodeFailure()
			continue
		}
		history = append(history, msg)
	}
	return history, nil
}

// Clear deletes the transcript and reports whether one existed.
func (s *Store) Clear(ctx context.Context, sessionID string) (bool, error) {
	conn, err := s.client.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	n, err := conn.Del(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: clear %s: %w", ErrStoreUnavailable, sessionID, err)
	}
	return n > 0, nil
}
