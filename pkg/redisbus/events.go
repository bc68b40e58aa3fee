package redisbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dyluth/cmdbus/pkg/commandbus"
)

// Publish publishes each event as JSON on the instance events channel.
// Publishing is at-most-once; events remain available through ReadEvents.
func (c *Client) Publish(ctx context.Context, events ...commandbus.EventMessage) error {
	channel := EventsChannel(c.instanceName)
	for _, e := range events {
		eventJSON, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", e.ID, err)
		}
		if err := c.rdb.Publish(ctx, channel, eventJSON).Err(); err != nil {
			return fmt.Errorf("failed to publish event %s: %w", e.ID, err)
		}
	}
	return nil
}

// SubscribeEvents subscribes to committed events of this instance.
// Caller must call Close() on the returned subscription when done.
func (c *Client) SubscribeEvents(ctx context.Context) (*Subscription[commandbus.EventMessage], error) {
	return subscribe(ctx, c.rdb, EventsChannel(c.instanceName), decodeJSON[commandbus.EventMessage]("event"))
}

// RecoverySignal asks every bus of an instance to lift the quarantine of an aggregate.
type RecoverySignal struct {
	AggregateID string `json:"aggregate_id"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// PublishRecovery publishes a recovery signal on the instance recovery channel.
func (c *Client) PublishRecovery(ctx context.Context, signal RecoverySignal) error {
	if signal.AggregateID == "" {
		return fmt.Errorf("aggregate id cannot be empty")
	}
	signalJSON, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("failed to marshal recovery signal: %w", err)
	}
	if err := c.rdb.Publish(ctx, RecoveryChannel(c.instanceName), signalJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish recovery signal: %w", err)
	}
	return nil
}

// SubscribeRecovery subscribes to recovery signals of this instance.
func (c *Client) SubscribeRecovery(ctx context.Context) (*Subscription[RecoverySignal], error) {
	return subscribe(ctx, c.rdb, RecoveryChannel(c.instanceName), decodeJSON[RecoverySignal]("recovery signal"))
}
