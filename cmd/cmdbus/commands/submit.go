package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/cmdbus/internal/ledger"
	"github.com/dyluth/cmdbus/internal/printer"
	"github.com/dyluth/cmdbus/pkg/commandbus"
	"github.com/dyluth/cmdbus/pkg/redisbus"
)

var (
	submitPayload   string
	submitCommandID string
	submitWait      bool
	submitTimeout   time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit COMMAND ACCOUNT_ID",
	Short: "Queue a ledger command",
	Long: `Queue a ledger command for the bus service.

Commands: OpenAccount, Deposit, Withdraw, CloseAccount.

A command that fails with a state_corrupted result raced the creation of its
account and should be resubmitted with the same --id.

Examples:
  cmdbus submit OpenAccount acc-1 --payload '{"owner":"ada","initial_balance":100}'
  cmdbus submit Deposit acc-1 --payload '{"amount":25}' --wait
  cmdbus submit Deposit acc-1 --payload '{"amount":25}' --id 4f1c... --wait`,
	Args: cobra.ExactArgs(2),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitPayload, "payload", "p", "", "Command payload as JSON")
	submitCmd.Flags().StringVar(&submitCommandID, "id", "", "Command ID (reuse to resubmit a command)")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "Wait for the command outcome")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 30*time.Second, "How long --wait waits")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	name, accountID := args[0], args[1]
	if !ledger.IsKnownCommand(name) {
		return printer.Error(
			fmt.Sprintf("unknown command '%s'", name),
			"The ledger handles OpenAccount, Deposit, Withdraw and CloseAccount.",
			nil,
		)
	}

	var payload json.RawMessage
	if submitPayload != "" {
		if !json.Valid([]byte(submitPayload)) {
			return printer.Error("invalid payload", "--payload must be valid JSON", nil)
		}
		payload = json.RawMessage(submitPayload)
	}

	command := commandbus.NewCommand(name, accountID, payload)
	if submitCommandID != "" {
		command.ID = submitCommandID
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.EnqueueCommand(ctx, command); err != nil {
		return printer.Error("failed to queue command", fmt.Sprintf("Error: %v", err), nil)
	}
	printer.Success("Queued %s for %s (id: %s)\n", name, accountID, command.ID)

	if !submitWait {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	result, err := client.WaitResult(waitCtx, command.ID, 100*time.Millisecond)
	if err != nil {
		return printer.Error(
			"no outcome received",
			fmt.Sprintf("Error: %v", err),
			[]string{fmt.Sprintf("Check later:\n  cmdbus result %s", command.ID)},
		)
	}
	return printResult(result)
}

// printResult shows a command outcome. Failed outcomes are returned as errors.
func printResult(result *redisbus.CommandResult) error {
	if result.Status == redisbus.ResultSucceeded {
		printer.Success("Command %s succeeded\n", result.CommandID)
		if len(result.Result) > 0 {
			printer.Printf("%s\n", result.Result)
		}
		return nil
	}

	var suggestions []string
	switch commandbus.Kind(result.Kind) {
	case commandbus.KindStateCorrupted:
		suggestions = []string{fmt.Sprintf("Resubmit the same command with --id %s", result.CommandID)}
	case commandbus.KindBlacklisted:
		suggestions = []string{fmt.Sprintf("Repair the account, then lift the quarantine:\n  cmdbus recover %s", result.AggregateID)}
	}

	return printer.ErrorWithContext(
		fmt.Sprintf("command %s failed", result.CommandID),
		result.Error,
		map[string]string{"Kind": result.Kind},
		suggestions,
	)
}
