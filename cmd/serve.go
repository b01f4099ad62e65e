package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"busybee/internal/config"
	"busybee/internal/database"
	"busybee/internal/handler"
	"busybee/internal/logger"
	"busybee/internal/repository"
	"busybee/internal/service"
	"busybee/internal/trpc"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	baseLogger := logger.NewAsyncLogger(appCtx, cfg.Logger())
	defer baseLogger.Close()
	baseLogger.Info("Application starting...", "env", cfg.App.Env, "driver", cfg.Database.Driver)

	accessor := database.New(cfg.Database, baseLogger)
	defer accessor.Close()

	taskRepo, err := repository.NewTaskRepository(ctx, accessor, baseLogger)
	if err != nil {
		baseLogger.Error("Failed to open database", "error", err)
		return err
	}
	defer taskRepo.Close()

	taskService := service.NewTaskService(taskRepo, baseLogger)
	taskHandler := handler.NewTaskHandler(taskService, baseLogger)
	rpcHandler := trpc.NewHandler(taskService, baseLogger)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler.NewRouter(taskHandler, rpcHandler, baseLogger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		baseLogger.Info("Server is listening", "addr", server.Addr, "database", accessor.Location())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		baseLogger.Info("Server is shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		baseLogger.Error("Server stopped with error", "error", err)
		return err
	}
	baseLogger.Info("Server stopped")
	return nil
}
