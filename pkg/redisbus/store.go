package redisbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/cmdbus/pkg/commandbus"
)

// ErrConcurrencyConflict is returned by AppendEvents when the aggregate stream
// does not end where the appended events expect it to.
var ErrConcurrencyConflict = errors.New("concurrent modification of aggregate stream")

// maxAppendRetries bounds the WATCH/EXEC loop when unrelated writers touch the
// same key between WATCH and EXEC.
const maxAppendRetries = 3

// AppendEvents stores events in the stream of their aggregate.
//
// Event sequences are zero-based positions in the aggregate stream: the first
// appended event of an aggregate must carry the stream's current length, or the
// append fails with ErrConcurrencyConflict. All streams touched by one call are
// written in a single MULTI/EXEC transaction.
func (c *Client) AppendEvents(ctx context.Context, aggregateType string, events []commandbus.EventMessage) error {
	if len(events) == 0 {
		return nil
	}
	if aggregateType == "" {
		return fmt.Errorf("aggregate type cannot be empty")
	}

	// First expected sequence per stream, in the order streams first appear.
	expected := make(map[string]int64)
	var keys []string
	for _, e := range events {
		if e.AggregateID == "" {
			return fmt.Errorf("event %s has no aggregate id", e.ID)
		}
		key := EventStreamKey(c.instanceName, aggregateType, e.AggregateID)
		if _, ok := expected[key]; !ok {
			expected[key] = e.Sequence
			keys = append(keys, key)
		}
	}

	values := make([]map[string]interface{}, len(events))
	for i, e := range events {
		v, err := EventToValues(e)
		if err != nil {
			return fmt.Errorf("failed to serialize event %s: %w", e.ID, err)
		}
		values[i] = v
	}

	txf := func(tx *redis.Tx) error {
		for _, key := range keys {
			length, err := tx.XLen(ctx, key).Result()
			if err != nil {
				return fmt.Errorf("failed to read stream length: %w", err)
			}
			if length != expected[key] {
				return fmt.Errorf("%w: %s has %d events, append expects %d",
					ErrConcurrencyConflict, key, length, expected[key])
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, e := range events {
				pipe.XAdd(ctx, &redis.XAddArgs{
					Stream: EventStreamKey(c.instanceName, aggregateType, e.AggregateID),
					Values: values[i],
				})
				pipe.SAdd(ctx, AggregateIndexKey(c.instanceName, aggregateType), e.AggregateID)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		err := c.rdb.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrConcurrencyConflict) {
				return err
			}
			return fmt.Errorf("failed to append events: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: gave up after %d attempts", ErrConcurrencyConflict, maxAppendRetries)
}

// ReadEvents returns every stored event of an aggregate in append order.
// An unknown aggregate yields an empty slice and no error.
func (c *Client) ReadEvents(ctx context.Context, aggregateType, aggregateID string) ([]commandbus.EventMessage, error) {
	key := EventStreamKey(c.instanceName, aggregateType, aggregateID)

	entries, err := c.rdb.XRange(ctx, key, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events from Redis: %w", err)
	}

	events := make([]commandbus.EventMessage, 0, len(entries))
	for _, entry := range entries {
		event, err := ValuesToEvent(entry.Values)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize event %s: %w", entry.ID, err)
		}
		events = append(events, event)
	}
	return events, nil
}

// AggregateIDs returns the identifiers of every aggregate of a type that has
// stored events.
func (c *Client) AggregateIDs(ctx context.Context, aggregateType string) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, AggregateIndexKey(c.instanceName, aggregateType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read aggregate index: %w", err)
	}
	return ids, nil
}
