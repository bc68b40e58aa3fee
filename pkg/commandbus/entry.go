package commandbus

import (
	"github.com/cespare/xxhash/v2"
)

// Entry is the record threaded through every pipeline stage: one per inbound command,
// or a recovery signal carrying only an aggregate identifier.
//
// The business-logic stage fills the unit of work, the aggregate identifier and exactly
// one of result or failure before the entry is appended to the stream. After that, only
// the publisher owning the entry's partition touches it.
type Entry struct {
	command     Command
	callback    CommandCallback
	unitOfWork  UnitOfWork
	aggregateID string
	result      any
	failure     error
	partition   int
	recovery    bool
	sequence    uint64
}

// NewEntry creates a pipeline entry for cmd. A nil callback means the caller is not
// interested in success notifications; failures are still reported (and logged).
func NewEntry(cmd Command, callback CommandCallback) *Entry {
	return &Entry{
		command:  cmd,
		callback: callback,
	}
}

// NewRecoveryEntry creates a recovery signal for aggregateID. Every partition acts on it.
func NewRecoveryEntry(aggregateID string) *Entry {
	return &Entry{
		aggregateID: aggregateID,
		recovery:    true,
	}
}

// Command returns the command carried by the entry.
func (e *Entry) Command() Command { return e.command }

// Callback returns the caller's callback, or nil.
func (e *Entry) Callback() CommandCallback { return e.callback }

// UnitOfWork returns the unit of work produced by the business-logic stage.
func (e *Entry) UnitOfWork() UnitOfWork { return e.unitOfWork }

// SetUnitOfWork attaches the unit of work produced by the business-logic stage.
func (e *Entry) SetUnitOfWork(uow UnitOfWork) { e.unitOfWork = uow }

// AggregateIdentifier resolves the aggregate the entry mutates: the unit of work's
// aggregate if it has one, otherwise the explicitly set identifier.
func (e *Entry) AggregateIdentifier() string {
	if e.unitOfWork != nil {
		if agg := e.unitOfWork.Aggregate(); agg != nil {
			if id := agg.Identifier(); id != "" {
				return id
			}
		}
	}
	return e.aggregateID
}

// SetAggregateIdentifier records the aggregate identifier resolved by business logic.
// Invokers leave it unset when the target aggregate could not be loaded.
func (e *Entry) SetAggregateIdentifier(id string) { e.aggregateID = id }

// Result returns the successful outcome, if any.
func (e *Entry) Result() any { return e.result }

// Failure returns the failed outcome, if any.
func (e *Entry) Failure() error { return e.failure }

// SetResult records a successful outcome and clears any failure.
func (e *Entry) SetResult(result any) {
	e.result = result
	e.failure = nil
}

// SetFailure records a failed outcome and clears any result.
func (e *Entry) SetFailure(err error) {
	e.failure = err
	e.result = nil
}

// Partition returns the partition index the entry is routed to.
func (e *Entry) Partition() int { return e.partition }

// IsRecovery reports whether the entry is a recovery signal.
func (e *Entry) IsRecovery() bool { return e.recovery }

// Sequence returns the global stream sequence assigned on append (starting at 1).
func (e *Entry) Sequence() uint64 { return e.sequence }

// RoutingKey returns the key the partition is derived from. It must name the same
// aggregate the publisher blacklists, so the resolved AggregateIdentifier wins over
// the command's target; the command identity is the last resort for creates whose
// aggregate is still unknown.
func (e *Entry) RoutingKey() string {
	if id := e.AggregateIdentifier(); id != "" {
		return id
	}
	if e.command.AggregateID != "" {
		return e.command.AggregateID
	}
	return e.command.ID
}

// route assigns the target partition for a bus with n partitions.
func (e *Entry) route(n int) {
	e.partition = PartitionFor(e.RoutingKey(), n)
}

// PartitionFor maps a routing key to one of n partitions. It is a pure function of the
// key, which is what gives every aggregate a single owning publisher.
func PartitionFor(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(n))
}
