package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/codexrag/ingesta/internal/app"
	"github.com/codexrag/ingesta/internal/config"
)

func main() {
	cfg := config.LoadConfig()

	// First signal stops dequeuing new files and lets in-flight ones finish;
	// a second signal kills the process.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("ingestion aborted: %v", err)
	}
}
