// Package main runs the ingestion pipeline HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/config"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/app"
)

func main() {
	logger := app.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}
	defer a.Close()

	go func() {
		if err := a.Hub.Run(ctx); err != nil {
			logger.Error("event hub stopped", zap.Error(err))
		}
	}()
	if cfg.Sites.Watch {
		go func() {
			if err := a.Sites.Watch(ctx); err != nil {
				logger.Error("sites watcher stopped", zap.Error(err))
			}
		}()
	}

	server := a.NewServer()
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.Router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	server.Drain(30*time.Second, logger)
	logger.Info("server stopped")
}
