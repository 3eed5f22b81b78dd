package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"prreview-backend/internal/bootstrap"
	"prreview-backend/internal/shared/config"
	"prreview-backend/internal/shared/server"
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if app.Pool != nil {
		app.Pool.Start(ctx)
		log.Printf("in-process worker pool started concurrency=%d", cfg.WorkerConcurrency)
	}

	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s", addr)

	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
