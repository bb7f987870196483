package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"flotilla/internal/app"
	"flotilla/internal/config"
	"flotilla/internal/support"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}
}

func main() {
	log.Info("Starting Flotilla")
	log.SetLevel(log.DebugLevel)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if err := support.CloseRedisClient(); err != nil {
			log.Warn("error closing redis client", "error", err)
		}
	}()

	if err := app.New(cfg).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("Flotilla stopped", "error", err)
	}
	log.Info("Flotilla stopped.")
}
