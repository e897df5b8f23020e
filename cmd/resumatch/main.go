package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"resumatch/internal/cli"
	"resumatch/internal/config"
	"resumatch/internal/errors"
)

func main() {
	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	logger, err := errors.New(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Secrets from Vault override file and environment values
	vault, err := config.ApplyVaultSecrets(cfg, logger)
	if err != nil {
		logger.LogError(err, "Failed to load secrets from Vault")
		os.Exit(1)
	}

	logger.Debug("Starting resumatch",
		"version", cli.Version,
		"log_level", cfg.App.LogLevel,
		"api", cfg.API.BaseURL,
		"session_store", cfg.Session.Store)

	// Execute command with cancellable context
	if err := cli.Execute(ctx, cfg, logger, vault); err != nil {
		logger.LogError(err, "Application execution failed")
		os.Exit(1)
	}
}
