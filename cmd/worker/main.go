package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"quadvote/internal/app/bootstrap"
)

// Worker process entrypoint: outbox relay + scheduled vote closer.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.BuildWorker()
	if err != nil {
		log.Fatalf("quadvote worker bootstrap failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("quadvote worker close failed: %v", err)
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("quadvote worker stopped: %v", err)
	}
}
