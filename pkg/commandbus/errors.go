package commandbus

import (
	"errors"
	"fmt"
)

// Kind tags a failure with the category the publisher and rollback policies act on.
type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindBusiness          Kind = "business"            // Declared domain rejection
	KindAggregateNotFound Kind = "aggregate_not_found" // Target aggregate does not exist (yet)
	KindStateCorrupted    Kind = "state_corrupted"     // Transient, caller should resubmit
	KindBlacklisted       Kind = "blacklisted"         // Aggregate quarantined until recovery
	KindCommit            Kind = "commit"              // Store or bus failure
)

var (
	// ErrAggregateNotFound is returned by invokers when the target aggregate does not exist.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrExecutorSaturated is returned when the executor queue is full.
	ErrExecutorSaturated = errors.New("executor saturated")

	// ErrExecutorClosed is returned when a task is submitted after Close.
	ErrExecutorClosed = errors.New("executor closed")

	// ErrStreamClosed is returned when appending to a closed stream.
	ErrStreamClosed = errors.New("stream closed")
)

// AggregateNotFoundError reports that the aggregate a command targets does not exist.
type AggregateNotFoundError struct {
	AggregateID string
}

func (e *AggregateNotFoundError) Error() string {
	return fmt.Sprintf("aggregate %s not found", e.AggregateID)
}

// Is makes errors.Is(err, ErrAggregateNotFound) match.
func (e *AggregateNotFoundError) Is(target error) bool {
	return target == ErrAggregateNotFound
}

// AggregateStateCorruptedError is the transient failure delivered the first time a
// command hits a not-found aggregate. The caller should resubmit the same command.
type AggregateStateCorruptedError struct {
	AggregateID string
	Message     string
}

func (e *AggregateStateCorruptedError) Error() string {
	if e.AggregateID == "" {
		return e.Message
	}
	return fmt.Sprintf("aggregate %s: %s", e.AggregateID, e.Message)
}

// AggregateBlacklistedError reports that an aggregate is quarantined.
// Cause is nil when a command was rejected for an already blacklisted aggregate.
type AggregateBlacklistedError struct {
	AggregateID string
	Message     string
	Cause       error
}

func (e *AggregateBlacklistedError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *AggregateBlacklistedError) Unwrap() error {
	return e.Cause
}

// BusinessError marks a failure as a declared domain rejection.
type BusinessError struct {
	Err error
}

// NewBusinessError wraps err as a business failure.
func NewBusinessError(err error) error {
	if err == nil {
		return nil
	}
	return &BusinessError{Err: err}
}

func (e *BusinessError) Error() string { return e.Err.Error() }

func (e *BusinessError) Unwrap() error { return e.Err }

// CommitError wraps a store or bus failure for which no aggregate could be quarantined.
type CommitError struct {
	Cause error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit failed: %v", e.Cause)
}

func (e *CommitError) Unwrap() error { return e.Cause }

// KindOf classifies err. The outermost typed error wins, so a blacklisted failure
// wrapping a commit error is KindBlacklisted.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	switch err.(type) {
	case *AggregateBlacklistedError:
		return KindBlacklisted
	case *AggregateStateCorruptedError:
		return KindStateCorrupted
	case *CommitError:
		return KindCommit
	case *BusinessError:
		return KindBusiness
	}

	var blacklisted *AggregateBlacklistedError
	var corrupted *AggregateStateCorruptedError
	var commit *CommitError
	var business *BusinessError
	switch {
	case errors.As(err, &blacklisted):
		return KindBlacklisted
	case errors.As(err, &corrupted):
		return KindStateCorrupted
	case errors.As(err, &commit):
		return KindCommit
	case errors.Is(err, ErrAggregateNotFound):
		return KindAggregateNotFound
	case errors.As(err, &business):
		return KindBusiness
	}
	return KindUnknown
}

// IsNotFound returns true if err reports a missing aggregate.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAggregateNotFound)
}

// IsBlacklisted returns true if err reports a quarantined aggregate.
func IsBlacklisted(err error) bool {
	var blacklisted *AggregateBlacklistedError
	return errors.As(err, &blacklisted)
}

// IsRetryable returns true if the caller should resubmit the same command.
func IsRetryable(err error) bool {
	var corrupted *AggregateStateCorruptedError
	return errors.As(err, &corrupted)
}
