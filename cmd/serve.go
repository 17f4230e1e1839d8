package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quickcomm/internal/api"
	"quickcomm/internal/observability"
	"quickcomm/internal/realtime"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat HTTP and WebSocket server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger, appOptions{dispatcher: true, generator: true, database: true})
		if err != nil {
			return err
		}
		defer a.Close()
		if cfg.ActiveProvider().APIKey == "" {
			logger.WithField("provider", cfg.Generation.Provider).Warn("no API key configured; replies will be canned")
		}

		var faqs api.FAQLister
		if a.faqs != nil {
			added, err := a.faqs.Seed(ctx)
			if err != nil {
				return err
			}
			logger.WithField("added", added).Debug("faq seed checked")
			a.faqs.StartRefresher(ctx, cfg.Database.FAQRefreshInterval(), a.generator.SetFAQs)
			faqs = a.faqs
		}

		observability.InitMetrics()
		if logger.IsLevelEnabled(logrus.DebugLevel) {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
		hub := realtime.NewHub(a.coordinator, cfg.BasicConfig.AllowedOrigins, logger)
		handler := api.NewHandler(a.coordinator, faqs, hub, logger).WithDependencies(a.redis, a.dispatcher)
		router := api.NewRouter(cfg.BasicConfig, handler, logger)

		return serve(ctx, cfg.BasicConfig.ServerAddress, router, hub, logger)
	},
}

// serve runs srv until ctx ends, then shuts it down and disconnects
// WebSocket clients.
func serve(ctx context.Context, addr string, handler http.Handler, hub *realtime.Hub, logger logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		hub.Close()
		if err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
