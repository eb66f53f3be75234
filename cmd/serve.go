package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"biliticket/invitehub/internal/handler"
	"biliticket/invitehub/internal/model"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the deferred cleanup worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error { return serve(cmd.Context(), a) })
		},
	}
}

func serve(parent context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger
	if parent == nil {
		parent = context.Background()
	}

	// 1. Auto-migrate if enabled
	if a.db != nil && cfg.Database.AutoMigrateEnabled() {
		if err := model.AutoMigrate(a.db); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		logger.Info("database migration completed")
	}
	if cfg.JWT.SigningKey == "" {
		return errors.New("jwt.signing_key is required")
	}

	// 2. Router
	router := handler.SetupRouter(cfg, logger, a.jwt,
		handler.NewRegistrationHandler(a.hooks, a.catalog, logger),
		handler.NewAdminHandler(a.invites, a.ledger, a.settings, a.catalog, cfg.Invite.DefaultPrefix, logger),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Deferred cleanup worker
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.newCleanupWorker().Run(ctx)
	}()

	// 4. Start server with graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case serveErr = <-errCh:
		logger.Error("server failed", zap.Error(serveErr))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	wg.Wait()

	logger.Info("server exited")
	return serveErr
}
