package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/cmdbus/internal/config"
	"github.com/dyluth/cmdbus/internal/logging"
	"github.com/dyluth/cmdbus/internal/service"
)

func main() {
	// 1. Load configuration (file is optional, environment always applies)
	cfg, err := config.Load(os.Getenv("CMDBUS_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Build the structured logger
	logger, err := logging.New(cfg.LogMode, "cmdbusd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	fmt.Printf("Command bus starting for instance '%s' with %d partitions\n", cfg.Instance, cfg.Bus.Partitions)

	// 3. Run until SIGTERM/SIGINT, then drain
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := service.Serve(ctx, cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Command bus error: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}

	fmt.Println("Command bus stopped")
}
