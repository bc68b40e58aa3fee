package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/cmdbus/internal/eventlog"
	"github.com/dyluth/cmdbus/internal/filter"
	"github.com/dyluth/cmdbus/internal/ledger"
	"github.com/dyluth/cmdbus/internal/printer"
	"github.com/dyluth/cmdbus/internal/timespec"
)

var (
	eventsOutputFormat string
	eventsSince        string
	eventsUntil        string
	eventsType         string
	eventsFollow       bool
)

var eventsCmd = &cobra.Command{
	Use:   "events [ACCOUNT_ID]",
	Short: "Inspect stored or live ledger events",
	Long: `Inspect ledger events.

History Mode (default):
  Lists stored events of every account, or of ACCOUNT_ID, oldest first.

Follow Mode (--follow):
  Streams events as the bus commits them until interrupted.

Output Formats:
  default - Human-readable table (history) or one line per event (follow)
  jsonl   - Line-delimited JSON, one event per line

Examples:
  # All events of one account
  cmdbus events acc-1

  # Withdrawals in the last hour as JSONL
  cmdbus events --type="MoneyWithdrawn" --since=1h --output=jsonl

  # Watch commits live
  cmdbus events --follow`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().StringVarP(&eventsOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "Show events after time (duration or RFC3339)")
	eventsCmd.Flags().StringVar(&eventsUntil, "until", "", "Show events before time (duration or RFC3339)")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "Filter by event type (glob pattern)")
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "Stream events as they are committed")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	format, err := eventlog.ParseOutputFormat(eventsOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", eventsOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	window, err := timespec.ParseRange(eventsSince, eventsUntil, time.Now())
	if err != nil {
		return printer.Error("invalid time filter", fmt.Sprintf("Error: %v", err), nil)
	}

	criteria := &filter.Criteria{Window: window, TypeGlob: eventsType}
	if len(args) == 1 {
		criteria.AggregateID = args[0]
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, cfg, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if !eventsFollow {
		if err := eventlog.ListEvents(ctx, client, cfg.Instance, ledger.AggregateType, criteria, format, printer.Out()); err != nil {
			return printer.Error("failed to list events", fmt.Sprintf("Error: %v", err), nil)
		}
		return nil
	}

	followCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := client.SubscribeEvents(followCtx)
	if err != nil {
		return printer.Error("failed to subscribe to events", fmt.Sprintf("Error: %v", err), nil)
	}
	defer sub.Close()

	printer.Step("Following events for instance '%s' (Ctrl+C to stop)\n", cfg.Instance)
	return eventlog.Follow(followCtx, sub, criteria, format, printer.Out(), printer.ErrOut())
}
