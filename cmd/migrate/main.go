package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/starlingpost/starlingpost/internal/config"
	"github.com/starlingpost/starlingpost/internal/observability/logger"
	"github.com/starlingpost/starlingpost/internal/store"
	_ "github.com/starlingpost/starlingpost/internal/store/drivers"
)

// migrate aplica las migraciones embebidas del driver configurado
// (postgres o sqlite) y sale.
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config (opcional)")
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		os.Exit(1)
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "starlingpost-migrate"})
	log := logger.L()
	defer func() { _ = logger.Sync() }()

	if cfg.Store.Driver == "memory" {
		log.Info("memory store has no migrations")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	st, err := store.Open(ctx, store.Config{
		Driver:   cfg.Store.Driver,
		DSN:      cfg.Store.DSN,
		MaxConns: 2,
		Migrate:  true,
	})
	if err != nil {
		log.Fatal("migrations failed", logger.String("driver", cfg.Store.Driver), logger.Err(err))
	}
	_ = st.Close()
	log.Info("migrations applied", logger.String("driver", cfg.Store.Driver))
}
