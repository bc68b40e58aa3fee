package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/cmdbus/internal/printer"
	"github.com/dyluth/cmdbus/pkg/redisbus"
)

var recoverCmd = &cobra.Command{
	Use:   "recover ACCOUNT_ID",
	Short: "Lift the quarantine of an account",
	Long: `Publish a recovery signal for a quarantined account.

Every running bus of the instance drops its cached state of the account and
accepts commands for it again.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

func runRecover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, cfg, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	signal := redisbus.RecoverySignal{
		AggregateID: args[0],
		RequestedBy: requester(),
	}
	if err := client.PublishRecovery(ctx, signal); err != nil {
		return printer.Error("failed to publish recovery signal", fmt.Sprintf("Error: %v", err), nil)
	}

	printer.Success("Recovery signal sent for %s on instance '%s'\n", args[0], cfg.Instance)
	return nil
}

func requester() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	host, _ := os.Hostname()
	return host
}
