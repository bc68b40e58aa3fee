// Package eventlog lists and streams stored ledger events for the cmdbus CLI.
package eventlog

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/cmdbus/pkg/commandbus"
)

// OutputFormat specifies how events are written.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format with truncated payloads
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete events as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSONL:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format: %s", s)
}

// FormatTable writes events as a formatted table to the provided writer.
// Returns the number of events formatted.
func FormatTable(w io.Writer, events []commandbus.EventMessage, instanceName string, now time.Time) int {
	if len(events) == 0 {
		fmt.Fprintf(w, "No events found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Events for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-10s %-14s %-5s %-16s %-8s %s\n",
		"ID", "AGGREGATE", "SEQ", "TYPE", "AGE", "PAYLOAD")
	fmt.Fprintf(w, "%-10s %-14s %-5s %-16s %-8s %s\n",
		"----------", "--------------", "-----", "----------------", "--------", "----------------------------------------")

	for _, e := range events {
		fmt.Fprintf(w, "%-10s %-14s %-5d %-16s %-8s %s\n",
			formatID(e.ID),
			formatAggregate(e.AggregateID),
			e.Sequence,
			formatType(e.Type),
			formatAge(e.Timestamp, now),
			formatPayload(e.Payload),
		)
	}

	countMsg := "event"
	if len(events) != 1 {
		countMsg = "events"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(events), countMsg)

	return len(events)
}

// FormatJSONL writes events as line-delimited JSON (JSONL) to the provided writer.
// This format is ideal for streaming and processing with tools like jq.
func FormatJSONL(w io.Writer, events ...commandbus.EventMessage) error {
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatLine writes one event as a single human-readable line, used when following.
func FormatLine(w io.Writer, e commandbus.EventMessage) {
	fmt.Fprintf(w, "[%s] %s #%d %s %s\n",
		e.Timestamp.Local().Format("15:04:05"),
		e.AggregateID,
		e.Sequence,
		e.Type,
		formatPayload(e.Payload))
}

// formatID truncates event ID to first 8 characters for compact display.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatAggregate(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 14 {
		return id[:11] + "..."
	}
	return id
}

// formatType truncates long type names for compact display.
func formatType(typeName string) string {
	if len(typeName) > 16 {
		return typeName[:13] + "..."
	}
	return typeName
}

// formatPayload compacts the payload to a single line with max 40 characters.
// Empty payloads return "-".
func formatPayload(payload json.RawMessage) string {
	if len(payload) == 0 {
		return "-"
	}

	line := strings.Join(strings.Fields(string(payload)), " ")
	if line == "" || line == "null" {
		return "-"
	}
	if len(line) > 40 {
		return line[:37] + "..."
	}
	return line
}

// formatAge formats a timestamp as relative time like "2m ago".
func formatAge(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "-"
	}

	diff := now.Sub(t)
	if diff < 0 {
		diff = 0
	}

	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
