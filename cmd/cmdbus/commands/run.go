package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyluth/cmdbus/internal/logging"
	"github.com/dyluth/cmdbus/internal/printer"
	"github.com/dyluth/cmdbus/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the command bus service in the foreground",
	Long: `Run the command bus service in the foreground until interrupted.

The service pops commands from the instance queue, executes them on the
partitioned bus and stores every outcome in Redis. On SIGINT or SIGTERM it
stops taking new commands and drains the ones already admitted.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogMode, "cmdbus")
	if err != nil {
		return printer.Error("invalid log mode", fmt.Sprintf("Error: %v", err), nil)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printer.Step("Starting command bus for instance '%s' (%d partitions)\n", cfg.Instance, cfg.Bus.Partitions)

	if err := service.Serve(ctx, cfg, logger); err != nil {
		return printer.ErrorWithContext(
			"command bus stopped with an error",
			fmt.Sprintf("Error: %v", err),
			map[string]string{"Instance": cfg.Instance},
			nil,
		)
	}

	printer.Success("Command bus stopped\n")
	return nil
}
