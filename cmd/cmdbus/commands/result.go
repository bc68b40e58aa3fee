package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/cmdbus/internal/printer"
	"github.com/dyluth/cmdbus/internal/resolver"
	"github.com/dyluth/cmdbus/pkg/redisbus"
)

var resultCmd = &cobra.Command{
	Use:   "result COMMAND_ID",
	Short: "Show the outcome of a queued command",
	Long: `Show the stored outcome of a queued command.

COMMAND_ID may be a prefix of at least 6 characters when it is unique.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResult,
}

func init() {
	rootCmd.AddCommand(resultCmd)
}

func runResult(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	commandID, err := resolver.ResolveCommandID(ctx, client, args[0])
	if err != nil {
		var ambiguous *resolver.AmbiguousError
		if errors.As(err, &ambiguous) {
			return printer.Error("ambiguous command ID", resolver.FormatAmbiguousError(ambiguous), nil)
		}
		if !resolver.IsNotFoundError(err) {
			return printer.Error("failed to read outcome", fmt.Sprintf("Error: %v", err), nil)
		}
	}
	if commandID == "" {
		commandID = args[0]
	}

	result, err := client.GetResult(ctx, commandID)
	if err != nil {
		if redisbus.IsNotFound(err) {
			return printer.Error(
				fmt.Sprintf("no outcome for command %s", args[0]),
				"The command is still queued or in flight, or its outcome has expired.",
				nil,
			)
		}
		return printer.Error("failed to read outcome", fmt.Sprintf("Error: %v", err), nil)
	}
	return printResult(result)
}
