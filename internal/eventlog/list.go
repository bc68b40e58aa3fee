package eventlog

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dyluth/cmdbus/internal/filter"
	"github.com/dyluth/cmdbus/pkg/commandbus"
)

// Store is the read side of the event store used by ListEvents.
type Store interface {
	ReadEvents(ctx context.Context, aggregateType, aggregateID string) ([]commandbus.EventMessage, error)
	AggregateIDs(ctx context.Context, aggregateType string) ([]string, error)
}

// ListEvents writes the stored events of aggregateType matching criteria.
// When criteria names an aggregate only its stream is read; otherwise every indexed
// aggregate is. Events are ordered by timestamp, then aggregate and sequence.
func ListEvents(ctx context.Context, store Store, instanceName, aggregateType string, criteria *filter.Criteria, format OutputFormat, w io.Writer) error {
	if criteria == nil {
		criteria = &filter.Criteria{}
	}

	ids := []string{criteria.AggregateID}
	if criteria.AggregateID == "" {
		var err error
		ids, err = store.AggregateIDs(ctx, aggregateType)
		if err != nil {
			return fmt.Errorf("failed to list aggregates: %w", err)
		}
	}

	var events []commandbus.EventMessage
	for _, id := range ids {
		stream, err := store.ReadEvents(ctx, aggregateType, id)
		if err != nil {
			return fmt.Errorf("failed to read events of %s: %w", id, err)
		}
		for _, e := range stream {
			if criteria.Matches(e) {
				events = append(events, e)
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.AggregateID != b.AggregateID {
			return a.AggregateID < b.AggregateID
		}
		return a.Sequence < b.Sequence
	})

	switch format {
	case OutputFormatDefault:
		FormatTable(w, events, instanceName, time.Now())
	case OutputFormatJSONL:
		if err := FormatJSONL(w, events...); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
