package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dyluth/cmdbus/pkg/commandbus"
)

// EventReader loads the stored events of an aggregate.
type EventReader interface {
	ReadEvents(ctx context.Context, aggregateType, aggregateID string) ([]commandbus.EventMessage, error)
}

// Invoker runs ledger business logic for the command bus.
//
// Accounts are cached after the first load and the cache is advanced as soon as a
// command is invoked, ahead of the commit: the next command for the same account
// sees the new state while the previous one is still in the stream. A rolled back
// unit of work or a recovery signal evicts the account, forcing a reload from the
// event store.
type Invoker struct {
	reader EventReader
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]*Account
}

// NewInvoker creates an invoker loading accounts from reader.
func NewInvoker(reader EventReader, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		reader: reader,
		logger: logger.With(zap.String("component", "ledger")),
		now:    time.Now,
		cache:  make(map[string]*Account),
	}
}

// Invoke implements commandbus.Invoker.
func (i *Invoker) Invoke(ctx context.Context, entry *commandbus.Entry) {
	cmd := entry.Command()
	if !IsKnownCommand(cmd.Name) {
		entry.SetFailure(commandbus.NewBusinessError(fmt.Errorf("unknown command: %s", cmd.Name)))
		return
	}
	accountID := cmd.AggregateID
	if accountID == "" {
		entry.SetFailure(commandbus.NewBusinessError(ErrMissingAccountID))
		return
	}

	current, err := i.load(ctx, accountID)
	if err != nil {
		entry.SetFailure(fmt.Errorf("failed to load account %s: %w", accountID, err))
		return
	}

	if cmd.Name == CommandOpenAccount {
		if current != nil {
			entry.SetFailure(commandbus.NewBusinessError(ErrAccountExists))
			return
		}
		current = &Account{ID: accountID}
	} else if current == nil {
		entry.SetFailure(&commandbus.AggregateNotFoundError{AggregateID: accountID})
		return
	}

	next := current.clone()
	events, err := decide(next, cmd, i.now())
	if err != nil {
		// Business rejection: the unit of work commits nothing.
		entry.SetUnitOfWork(&unitOfWork{invoker: i, account: current})
		entry.SetAggregateIdentifier(accountID)
		entry.SetFailure(commandbus.NewBusinessError(err))
		return
	}

	i.mu.Lock()
	i.cache[accountID] = next
	i.mu.Unlock()

	entry.SetUnitOfWork(&unitOfWork{invoker: i, account: next, events: events})
	entry.SetAggregateIdentifier(accountID)
	entry.SetResult(next.Snapshot())
}

// Recover implements commandbus.Recoverer: the account is reloaded from the
// event store on its next command.
func (i *Invoker) Recover(aggregateID string) {
	i.evict(aggregateID)
	i.logger.Info("account_evicted", zap.String("aggregate_id", aggregateID), zap.String("reason", "recovery"))
}

// Cached returns a copy of the cached state of an account.
func (i *Invoker) Cached(accountID string) (*Account, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	a, ok := i.cache[accountID]
	if !ok {
		return nil, false
	}
	return a.clone(), true
}

func (i *Invoker) load(ctx context.Context, accountID string) (*Account, error) {
	i.mu.Lock()
	cached, ok := i.cache[accountID]
	i.mu.Unlock()
	if ok {
		return cached, nil
	}

	events, err := i.reader.ReadEvents(ctx, AggregateType, accountID)
	if err != nil {
		return nil, err
	}
	account, err := Replay(events)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, nil
	}

	i.mu.Lock()
	i.cache[accountID] = account
	i.mu.Unlock()
	return account, nil
}

func (i *Invoker) evict(accountID string) {
	i.mu.Lock()
	delete(i.cache, accountID)
	i.mu.Unlock()
}

// unitOfWork carries one command's account mutation through the publisher.
// A unit of work with events that ends without a commit evicts the account,
// since the cache already holds its uncommitted state.
type unitOfWork struct {
	invoker   *Invoker
	account   *Account
	events    []commandbus.EventMessage
	committed bool
}

func (u *unitOfWork) Aggregate() commandbus.Aggregate { return u.account }

func (u *unitOfWork) AggregateType() string { return AggregateType }

func (u *unitOfWork) EventsToStore() []commandbus.EventMessage { return u.events }

func (u *unitOfWork) EventsToPublish() []commandbus.EventMessage { return u.events }

func (u *unitOfWork) OnPrepareCommit() {}

func (u *unitOfWork) Rollback(cause error) {
	u.invoker.evict(u.account.ID)
}

func (u *unitOfWork) OnRollback(cause error) {
	u.invoker.evict(u.account.ID)
	u.invoker.logger.Warn("account_evicted",
		zap.String("aggregate_id", u.account.ID),
		zap.String("reason", "rollback"),
		zap.Error(cause))
}

func (u *unitOfWork) OnAfterCommit() { u.committed = true }

func (u *unitOfWork) OnCleanup() {
	if !u.committed && len(u.events) > 0 {
		u.invoker.evict(u.account.ID)
	}
}
