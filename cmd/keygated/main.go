package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"keygate/internal/config"
	httpinfra "keygate/internal/infra/http"
	"keygate/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	logger := logging.For("keygated")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keys, err := openKeyStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to init store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := keys.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	srv := httpinfra.NewServer(cfg, keys)
	if err := srv.RunContext(ctx); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
