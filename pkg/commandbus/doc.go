// Package commandbus implements a partitioned command-processing pipeline for
// event-sourced aggregates.
//
// # Overview
//
// Every inbound command becomes an Entry that flows through ordered stages: the
// business-logic stage (an Invoker) fills the entry with a unit of work and an
// outcome, the entry is appended to a shared ordered Stream, and a Publisher
// commits or rolls back the unit of work, appends its events to the EventStore,
// publishes them on the EventBus and reports the outcome to the caller.
//
// # Partitions
//
// Entries are routed by PartitionFor(aggregateID, n). Each partition has exactly one
// Publisher running on its own goroutine; every publisher observes every entry in the
// same global order but only acts on entries routed to it. All mutations of one
// aggregate are therefore applied in stream order, while unrelated aggregates commit in
// parallel, without any lock on aggregate state.
//
// # Failure isolation
//
// When a commit fails (store or bus error) or the rollback policy rolls back a unit of
// work for a known aggregate, the partition blacklists the aggregate. Later commands
// for it are rejected with AggregateBlacklistedError without reaching the store, until
// a recovery signal (Bus.Recover) clears it.
//
// The first time a command fails with ErrAggregateNotFound the publisher assumes it
// raced a concurrent create and reports a retryable AggregateStateCorruptedError. If
// the same command (same ID) fails that way again, the not-found is final.
//
// # Result delivery
//
// Callbacks never run on a publisher goroutine: each outcome is handed to an Executor.
// A rejected delivery is fatal for the partition and stops the bus.
//
// # Usage Example
//
//	bus, err := commandbus.New(commandbus.Config{Partitions: 8}, invoker, store,
//		commandbus.WithEventBus(eventBus),
//		commandbus.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	if err := bus.Start(ctx); err != nil {
//		return err
//	}
//	defer bus.Stop(context.Background())
//
//	result, err := bus.DispatchAndWait(ctx, commandbus.NewCommand("OpenAccount", "acc-1", payload))
//	if commandbus.IsRetryable(err) {
//		// resubmit the same command
//	}
package commandbus
