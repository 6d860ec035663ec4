package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Achraf-CHAHBOUNE/Orange-system/app/transformer"
	"github.com/joho/godotenv"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	defer cancel()

	_ = godotenv.Load()

	app := transformer.Initialize(ctx)

	app.Start(ctx)
}
