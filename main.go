package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/km-mtb/kmtb-bot/app"
	"github.com/km-mtb/kmtb-bot/config"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", slog.String("error", err.Error()))
		os.Exit(1)
	}

	errCh, err := application.Start(ctx)
	if err != nil {
		logger.Error("failed to start app", slog.String("error", err.Error()))
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("fatal component failure", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	application.Shutdown(shutdownCtx)
}
