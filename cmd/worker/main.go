package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rudefriend/internal/app/bootstrap"

	"github.com/joho/godotenv"
)

// Worker process entrypoint.
// Data flow:
// 1) Load .env and config.
// 2) Build app wiring.
// 3) Run scheduled jobs (outbox relay, tally repair) until SIGINT/SIGTERM.
func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.BuildWorker(ctx)
	if err != nil {
		log.Fatalf("bootstrap worker failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("worker shutdown close failed: %v", err)
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Printf("rudefriend worker stopped with error: %v", err)
	}
}
