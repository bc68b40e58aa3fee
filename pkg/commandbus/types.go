package commandbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Command is the inbound request carried by a pipeline entry.
// ID is the command identity: resubmitting the same command must reuse the same ID.
type Command struct {
	ID          string            `json:"id"`                     // UUID - identity used for pending-create tracking
	Name        string            `json:"name"`                   // Command name (e.g., "OpenAccount")
	AggregateID string            `json:"aggregate_id,omitempty"` // Target aggregate, used as routing key
	Payload     json.RawMessage   `json:"payload,omitempty"`      // Command-specific body
	Metadata    map[string]string `json:"metadata,omitempty"`     // Free-form caller metadata
}

// NewCommand creates a command with a fresh UUID identity.
func NewCommand(name, aggregateID string, payload json.RawMessage) Command {
	return Command{
		ID:          uuid.New().String(),
		Name:        name,
		AggregateID: aggregateID,
		Payload:     payload,
	}
}

// Validate checks that the command carries an identity and a name.
func (c Command) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("command id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("command name is required")
	}
	return nil
}

// EventMessage is a domain event produced by a unit of work.
type EventMessage struct {
	ID          string            `json:"id"`
	AggregateID string            `json:"aggregate_id"`
	Sequence    int64             `json:"sequence"` // Per-aggregate sequence number (starts at 0)
	Type        string            `json:"type"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Aggregate is the minimal view of an event-sourced aggregate root the pipeline needs.
type Aggregate interface {
	Identifier() string
}

// UnitOfWork is the transactional scope around one command's aggregate mutation.
// OnCleanup is invoked by the publisher exactly once per entry.
type UnitOfWork interface {
	Aggregate() Aggregate
	AggregateType() string
	EventsToStore() []EventMessage
	EventsToPublish() []EventMessage
	OnPrepareCommit()
	Rollback(cause error)
	OnRollback(cause error)
	OnAfterCommit()
	OnCleanup()
}

// EventStore persists the events of an aggregate.
// Implementations must be safe for concurrent use by every partition.
type EventStore interface {
	AppendEvents(ctx context.Context, aggregateType string, events []EventMessage) error
}

// EventBus distributes committed events to subscribers.
// Implementations must be safe for concurrent use by every partition.
type EventBus interface {
	Publish(ctx context.Context, events ...EventMessage) error
}

// InterceptorChain runs the publisher-side interceptors for a command.
type InterceptorChain interface {
	Proceed(ctx context.Context, cmd Command) (any, error)
}

// InterceptorChainFunc adapts a function to InterceptorChain.
type InterceptorChainFunc func(ctx context.Context, cmd Command) (any, error)

// Proceed calls f(ctx, cmd).
func (f InterceptorChainFunc) Proceed(ctx context.Context, cmd Command) (any, error) {
	return f(ctx, cmd)
}

// PublisherInterceptor wraps the publication of a command. Calling next continues the chain;
// returning an error makes it the entry's failure.
type PublisherInterceptor func(ctx context.Context, cmd Command, next InterceptorChain) (any, error)

// Invoker is the business-logic stage. It fills the entry's unit of work, aggregate
// identifier and result or failure before the entry is appended to the stream.
type Invoker interface {
	Invoke(ctx context.Context, entry *Entry)
}

// Recoverer is implemented by invokers that cache aggregate state and need to drop it
// when an aggregate is recovered.
type Recoverer interface {
	Recover(aggregateID string)
}
