package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dyluth/cmdbus/pkg/commandbus"
)

// Command names
const (
	CommandOpenAccount  = "OpenAccount"
	CommandDeposit      = "Deposit"
	CommandWithdraw     = "Withdraw"
	CommandCloseAccount = "CloseAccount"
)

// OpenAccount is the payload of CommandOpenAccount.
type OpenAccount struct {
	Owner          string `json:"owner"`
	InitialBalance int64  `json:"initial_balance,omitempty"`
}

// Amount is the payload of CommandDeposit and CommandWithdraw.
type Amount struct {
	Amount int64 `json:"amount"`
}

// decide validates cmd against the account and records the resulting events on it.
// A returned error is a business rule violation; the account may be partially
// mutated and must be discarded.
func decide(a *Account, cmd commandbus.Command, now time.Time) ([]commandbus.EventMessage, error) {
	if a.Closed {
		return nil, ErrAccountClosed
	}

	switch cmd.Name {
	case CommandOpenAccount:
		var p OpenAccount
		if err := decodePayload(cmd, &p); err != nil {
			return nil, err
		}
		if p.Owner == "" {
			return nil, ErrMissingOwner
		}
		if p.InitialBalance < 0 {
			return nil, ErrInvalidAmount
		}
		e, err := a.record(EventAccountOpened, AccountOpenedPayload{Owner: p.Owner, InitialBalance: p.InitialBalance}, cmd.ID, now)
		if err != nil {
			return nil, err
		}
		return []commandbus.EventMessage{e}, nil

	case CommandDeposit, CommandWithdraw:
		var p Amount
		if err := decodePayload(cmd, &p); err != nil {
			return nil, err
		}
		if p.Amount <= 0 {
			return nil, ErrInvalidAmount
		}
		eventType := EventMoneyDeposited
		if cmd.Name == CommandWithdraw {
			if a.Balance < p.Amount {
				return nil, ErrInsufficientFunds
			}
			eventType = EventMoneyWithdrawn
		}
		e, err := a.record(eventType, AmountPayload{Amount: p.Amount}, cmd.ID, now)
		if err != nil {
			return nil, err
		}
		return []commandbus.EventMessage{e}, nil

	case CommandCloseAccount:
		if a.Balance != 0 {
			return nil, ErrNonZeroBalance
		}
		e, err := a.record(EventAccountClosed, nil, cmd.ID, now)
		if err != nil {
			return nil, err
		}
		return []commandbus.EventMessage{e}, nil
	}

	return nil, fmt.Errorf("unknown command: %s", cmd.Name)
}

func decodePayload(cmd commandbus.Command, v any) error {
	if len(cmd.Payload) == 0 {
		return fmt.Errorf("%s requires a payload", cmd.Name)
	}
	if err := json.Unmarshal(cmd.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", cmd.Name, err)
	}
	return nil
}

// IsKnownCommand reports whether name is handled by the ledger.
func IsKnownCommand(name string) bool {
	switch name {
	case CommandOpenAccount, CommandDeposit, CommandWithdraw, CommandCloseAccount:
		return true
	}
	return false
}
