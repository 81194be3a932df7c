package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"medius/internal/app"
	"medius/internal/chat"
	"medius/internal/config"
	"medius/internal/httpserver"
	"medius/internal/logging"
	"medius/internal/security"
	"medius/internal/ws"
)

// @title           Medius Deal Chat Bridge
// @version         1.0
// @description     Local bridge between a deal chat UI and the Medius escrow API.

// @host            localhost:8700
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("invalid bridge config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to init app", zap.Error(err))
	}
	defer a.Close()

	// Security components
	tokenSvc := security.NewTokenService(cfg.BridgeJWTSecret, time.Duration(cfg.BridgeTokenMinutes)*time.Minute)
	passcodes := security.NewPasscodeHasher(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Links are returned to the local UI, which opens them itself.
	sessions := chat.NewRegistry(ctx, a.SessionFactory(nil), logger)
	hub := ws.NewHub(a.Bus, logger)

	router := httpserver.NewRouter(httpserver.Deps{
		Config:    cfg,
		Logger:    logger,
		Sessions:  sessions,
		Dashboard: a.API,
		Identity:  a.Identity,
		Tokens:    tokenSvc,
		Passwords: passcodes,
		Hub:       hub,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("starting bridge", zap.String("app", cfg.AppName), zap.String("addr", cfg.HTTPAddr()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down bridge")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Shutdown()
	sessions.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
