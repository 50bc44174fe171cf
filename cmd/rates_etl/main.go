package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/langowen/fxledger/deploy/config"
	etlApp "github.com/langowen/fxledger/internal/rates_etl/app"
)

func main() {
	cfg := config.NewETLConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := etlApp.NewEtlApp(cfg)

	if err := app.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("etl failed", "error", err)
		stop()
		os.Exit(1)
	}

	slog.Info("etl stopped")
}
