package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/dyluth/cmdbus/pkg/redisbus"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// ResultLookup is the part of the Redis client the resolver needs.
type ResultLookup interface {
	GetResult(ctx context.Context, commandID string) (*redisbus.CommandResult, error)
	ScanResults(ctx context.Context, prefix string) ([]string, error)
}

// ResolveCommandID resolves a command ID prefix to the full ID of a stored result.
// An exact match always wins, so command IDs chosen with --id never need a prefix scan.
func ResolveCommandID(ctx context.Context, lookup ResultLookup, shortID string) (string, error) {
	_, err := lookup.GetResult(ctx, shortID)
	if err == nil {
		return shortID, nil
	}
	if !redisbus.IsNotFound(err) {
		return "", fmt.Errorf("failed to verify result existence: %w", err)
	}

	if len(shortID) < MinShortIDLength {
		return "", &NotFoundError{ShortID: shortID}
	}

	matches, err := lookup.ScanResults(ctx, shortID)
	if err != nil {
		return "", fmt.Errorf("failed to search for result: %w", err)
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no stored result matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no results found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple stored results matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d commands", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists the matching command IDs (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	msg := fmt.Sprintf("Short ID '%s' matches %d commands:\n", err.ShortID, len(err.Matches))

	displayCount := min(len(err.Matches), 10)
	for _, id := range err.Matches[:displayCount] {
		msg += fmt.Sprintf("  %s\n", id)
	}
	if len(err.Matches) > 10 {
		msg += fmt.Sprintf("  ...and %d more\n", len(err.Matches)-10)
	}

	msg += "\nUse a longer prefix to uniquely identify the command."
	return msg
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
