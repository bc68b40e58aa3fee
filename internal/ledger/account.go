// Package ledger is the account domain served by cmdbusd: an event-sourced
// Account aggregate and the command invoker that runs its business logic.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dyluth/cmdbus/pkg/commandbus"
)

// AggregateType is the event store type name of accounts.
const AggregateType = "Account"

// Event types
const (
	EventAccountOpened  = "AccountOpened"
	EventMoneyDeposited = "MoneyDeposited"
	EventMoneyWithdrawn = "MoneyWithdrawn"
	EventAccountClosed  = "AccountClosed"
)

// Business rule violations. Invokers wrap them in commandbus.BusinessError.
var (
	ErrAccountExists     = errors.New("account already exists")
	ErrAccountClosed     = errors.New("account is closed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrNonZeroBalance    = errors.New("account balance must be zero to close")
	ErrMissingAccountID  = errors.New("account id is required")
	ErrMissingOwner      = errors.New("owner is required")
)

// AccountOpenedPayload is the body of EventAccountOpened.
type AccountOpenedPayload struct {
	Owner          string `json:"owner"`
	InitialBalance int64  `json:"initial_balance"`
}

// AmountPayload is the body of EventMoneyDeposited and EventMoneyWithdrawn.
type AmountPayload struct {
	Amount int64 `json:"amount"`
}

// Account is the event-sourced aggregate root of the ledger.
type Account struct {
	ID      string
	Owner   string
	Balance int64
	Closed  bool

	version int64 // sequence of the next event
}

// Identifier implements commandbus.Aggregate.
func (a *Account) Identifier() string { return a.ID }

// Version returns the number of events applied to the account.
func (a *Account) Version() int64 { return a.version }

func (a *Account) clone() *Account {
	c := *a
	return &c
}

// Snapshot is the read view returned as a command result.
type Snapshot struct {
	AccountID string `json:"account_id"`
	Owner     string `json:"owner"`
	Balance   int64  `json:"balance"`
	Closed    bool   `json:"closed"`
	Version   int64  `json:"version"`
}

// Snapshot returns the current read view of the account.
func (a *Account) Snapshot() Snapshot {
	return Snapshot{
		AccountID: a.ID,
		Owner:     a.Owner,
		Balance:   a.Balance,
		Closed:    a.Closed,
		Version:   a.version,
	}
}

// Replay rebuilds an account from its stored events.
// Returns nil if events is empty.
func Replay(events []commandbus.EventMessage) (*Account, error) {
	if len(events) == 0 {
		return nil, nil
	}
	a := &Account{ID: events[0].AggregateID}
	for _, e := range events {
		if e.Sequence != a.version {
			return nil, fmt.Errorf("event %s out of sequence: got %d, expected %d", e.ID, e.Sequence, a.version)
		}
		if err := a.apply(e); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Account) apply(e commandbus.EventMessage) error {
	switch e.Type {
	case EventAccountOpened:
		var p AccountOpenedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload: %w", e.Type, err)
		}
		a.Owner = p.Owner
		a.Balance = p.InitialBalance
	case EventMoneyDeposited, EventMoneyWithdrawn:
		var p AmountPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload: %w", e.Type, err)
		}
		if e.Type == EventMoneyDeposited {
			a.Balance += p.Amount
		} else {
			a.Balance -= p.Amount
		}
	case EventAccountClosed:
		a.Closed = true
	default:
		return fmt.Errorf("unknown event type: %s", e.Type)
	}
	a.version++
	return nil
}

// record creates the next event of the account and applies it.
func (a *Account) record(eventType string, payload any, commandID string, now time.Time) (commandbus.EventMessage, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return commandbus.EventMessage{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
		}
		raw = b
	}

	e := commandbus.EventMessage{
		ID:          uuid.New().String(),
		AggregateID: a.ID,
		Sequence:    a.version,
		Type:        eventType,
		Payload:     raw,
		Timestamp:   now.UTC(),
		Metadata:    map[string]string{"command_id": commandID},
	}
	if err := a.apply(e); err != nil {
		return commandbus.EventMessage{}, err
	}
	return e, nil
}
