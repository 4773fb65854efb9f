package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/starlingpost/starlingpost/internal/app"
	"github.com/starlingpost/starlingpost/internal/config"
	"github.com/starlingpost/starlingpost/internal/observability/logger"
)

func main() {
	// .env es opcional (dev)
	envErr := godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.L().Fatal("config load", logger.Err(err))
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "starlingpost",
		Version:     cfg.App.Version,
	})
	log := logger.L()
	defer func() { _ = logger.Sync() }()

	if envErr != nil {
		log.Debug("no .env file, using process environment")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", logger.Err(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Init(ctx, cfg)
	if err != nil {
		log.Fatal("runtime init failed", logger.Err(err))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      rt.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", logger.String("addr", cfg.Server.Addr), logger.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("http server failed", logger.Err(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", logger.Err(err))
	}
	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Warn("runtime shutdown", logger.Err(err))
	}
	log.Info("bye")
}
