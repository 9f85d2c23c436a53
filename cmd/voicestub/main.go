package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/scenery-voice/internal/api"
	"github.com/satriahrh/scenery-voice/internal/auth"
	"github.com/satriahrh/scenery-voice/internal/config"
	"github.com/satriahrh/scenery-voice/internal/logging"
	"github.com/satriahrh/scenery-voice/internal/metrics"
	"github.com/satriahrh/scenery-voice/internal/websocket"
	"github.com/satriahrh/scenery-voice/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	var signer *auth.Signer
	if cfg.Auth.Secret != "" {
		signer, err = auth.NewSigner(cfg.Auth.Secret, cfg.Auth.TokenTTL)
		if err != nil {
			logger.Fatal("Failed to create token signer", zap.Error(err))
		}
		logger.Info("Voice stream requires bearer tokens")
	}

	script := usecase.DefaultScript()
	if cfg.Stub.Script != nil {
		script = *cfg.Stub.Script
	}
	conversation := usecase.NewScriptedConversation(script, logger)

	registry := metrics.NewRegistry()

	// Initialize WebSocket hub with conversation service
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := websocket.NewHub(conversation, metrics.NewServer(registry), logger)
	go hub.Run(ctx)
	go websocket.NewIdleSweeper(hub, cfg.Stub.IdleTimeout, logger).Run(ctx)

	// Initialize API routes
	api.InitRoutes(e, hub, signer, registry, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Stub.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Voice stub started", zap.String("port", cfg.Stub.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
