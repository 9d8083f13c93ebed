package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nmoraleda/storefront/internal/app"
	"github.com/nmoraleda/storefront/pkg/config"
	"github.com/nmoraleda/storefront/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	instance, err := app.New(context.Background(), cfg, logg, prometheus.DefaultRegisterer)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap storefront", err)
		os.Exit(1)
	}
	defer func() {
		if err := instance.Close(); err != nil {
			logg.Error(context.Background(), "error closing storefront", err)
		}
	}()

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"storage":  cfg.Storage.Driver,
		"callback": cfg.Payment.CallbackAddr,
	})
	logg.Info(ctx, "storefront client ready")

	errCh := make(chan error, 1)
	go func() {
		errCh <- instance.Listener.Start(ctx)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "gateway listener stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stop:
		logg.Info(ctx, "shutdown signal received")
	}
}
