package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Yamamotonasu/remindbot/internal/app"
	"github.com/Yamamotonasu/remindbot/internal/config"
	"github.com/Yamamotonasu/remindbot/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	// Sync errors are common on some platforms; nothing useful to do.
	defer func() { _ = log.Sync() }()

	application, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("bot init failed", zap.Error(err))
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatal("bot stopped with error", zap.Error(err))
	}
	return nil
}
