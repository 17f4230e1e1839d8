package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"quickcomm/internal/chat"
	"quickcomm/internal/config"
	"quickcomm/internal/redis"
	"quickcomm/internal/service/ai"
	"quickcomm/internal/service/faq"
	"quickcomm/internal/storage"
	"quickcomm/internal/transcript"
	"quickcomm/internal/worker"
)

var errNoDatabase = errors.New("no database configured; set DATABASE_DRIVER and DATABASE_DSN")

// app holds the components shared by the commands.
type app struct {
	cfg    *config.Config
	logger logrus.FieldLogger

	redis       *redis.Client
	store       *transcript.Store
	generator   *ai.Service
	dispatcher  *worker.Dispatcher
	coordinator *chat.Coordinator
	db          *sql.DB
	faqs        *faq.Service
}

type appOptions struct {
	// dispatcher runs turns on the worker pool instead of the caller's goroutine.
	dispatcher bool
	generator  bool
	database   bool
}

func newApp(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}
	a.redis = rdb
	a.store = transcript.NewStore(rdb, transcript.Options{
		KeyPrefix:  cfg.Redis.KeyPrefix,
		HistoryMax: cfg.Chat.HistoryMax,
		TTL:        cfg.Redis.SessionTTL(),
	}, logger)

	if opts.database && cfg.Database.Driver != "" {
		if err := a.openDatabase(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	if opts.generator {
		backend, err := ai.NewBackend(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init generation backend: %w", err)
		}
		a.generator = ai.NewService(backend, ai.OptionsFromConfig(cfg.Generation), logger)

		var runner chat.TurnRunner
		if opts.dispatcher {
			a.dispatcher = worker.NewDispatcher(worker.DispatcherConfig{
				MinWorkers:  cfg.Worker.MinWorkers,
				MaxWorkers:  cfg.Worker.MaxWorkers,
				QueueSize:   cfg.Worker.QueueSize,
				IdleTimeout: cfg.Worker.IdleTimeout(),
			}, logger)
			runner = a.dispatcher
		}
		a.coordinator = chat.NewCoordinator(a.store, a.generator, runner, chat.Options{
			TurnTimeout: cfg.Chat.TurnTimeout(),
		}, logger)
	}
	return a, nil
}

func (a *app) openDatabase(ctx context.Context) error {
	db, err := storage.Open(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = db
	if err := storage.Migrate(ctx, db, a.cfg.Database.Driver); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	a.faqs = faq.NewService(db, a.cfg.Database.Driver, a.logger)
	return nil
}

// Close stops the dispatcher first so in-flight turns can still commit.
func (a *app) Close() {
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.WithError(err).Warn("close redis")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.WithError(err).Warn("close database")
		}
	}
}
