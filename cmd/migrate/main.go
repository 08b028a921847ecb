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

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env failed: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Migrate(ctx); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}
}
