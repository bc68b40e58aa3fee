package commandbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type fakeAggregate struct {
	id string
}

func (a *fakeAggregate) Identifier() string { return a.id }

// fakeUnitOfWork records every lifecycle hook invoked on it.
type fakeUnitOfWork struct {
	mu              sync.Mutex
	aggregate       Aggregate
	events          []EventMessage
	calls           []string
	rollbackCause   error
	onRollbackCause error
	panicOn         string
}

func newFakeUnitOfWork(aggregateID string) *fakeUnitOfWork {
	uow := &fakeUnitOfWork{}
	if aggregateID != "" {
		uow.aggregate = &fakeAggregate{id: aggregateID}
		uow.events = []EventMessage{{
			ID:          uuid.New().String(),
			AggregateID: aggregateID,
			Type:        "SomethingHappened",
			Timestamp:   time.Now().UTC(),
		}}
	}
	return uow
}

func (u *fakeUnitOfWork) record(call string) {
	u.mu.Lock()
	u.calls = append(u.calls, call)
	u.mu.Unlock()
	if u.panicOn == call {
		panic("boom in " + call)
	}
}

func (u *fakeUnitOfWork) Aggregate() Aggregate {
	if u.aggregate == nil {
		return nil
	}
	return u.aggregate
}
func (u *fakeUnitOfWork) AggregateType() string           { return "Fake" }
func (u *fakeUnitOfWork) EventsToStore() []EventMessage   { return u.events }
func (u *fakeUnitOfWork) EventsToPublish() []EventMessage { return u.events }
func (u *fakeUnitOfWork) OnPrepareCommit()                { u.record("prepare") }
func (u *fakeUnitOfWork) OnAfterCommit()                  { u.record("after_commit") }
func (u *fakeUnitOfWork) OnCleanup()                      { u.record("cleanup") }

func (u *fakeUnitOfWork) Rollback(cause error) {
	u.rollbackCause = cause
	u.record("rollback")
}

func (u *fakeUnitOfWork) OnRollback(cause error) {
	u.onRollbackCause = cause
	u.record("on_rollback")
}

func (u *fakeUnitOfWork) count(call string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, c := range u.calls {
		if c == call {
			n++
		}
	}
	return n
}

// fakeStore records appended events per aggregate, optionally failing.
type fakeStore struct {
	mu       sync.Mutex
	appended []EventMessage
	err      error
	panics   bool
}

func (s *fakeStore) AppendEvents(_ context.Context, _ string, events []EventMessage) error {
	if s.panics {
		panic("store exploded")
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, events...)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appended)
}

func (s *fakeStore) aggregateOrder(aggregateID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var types []string
	for _, e := range s.appended {
		if e.AggregateID == aggregateID {
			types = append(types, e.Type)
		}
	}
	return types
}

type fakeBus struct {
	mu        sync.Mutex
	published []EventMessage
	err       error
}

func (b *fakeBus) Publish(_ context.Context, events ...EventMessage) error {
	if b.err != nil {
		return b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, events...)
	return nil
}

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

// recordingCallback captures the single outcome delivered to it.
type recordingCallback struct {
	mu        sync.Mutex
	successes []any
	failures  []error
}

func (c *recordingCallback) OnSuccess(result any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes = append(c.successes, result)
}

func (c *recordingCallback) OnFailure(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, cause)
}

func (c *recordingCallback) lastFailure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.failures) == 0 {
		return nil
	}
	return c.failures[len(c.failures)-1]
}

func (c *recordingCallback) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.successes) + len(c.failures)
}

// inlineExecutor runs tasks synchronously and counts them.
type inlineExecutor struct {
	mu    sync.Mutex
	tasks int
}

func (e *inlineExecutor) Execute(task func()) error {
	e.mu.Lock()
	e.tasks++
	e.mu.Unlock()
	task()
	return nil
}

func (e *inlineExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tasks
}

// newTestEntry builds an entry already filled by business logic and routed to partition 0.
func newTestEntry(aggregateID string, uow UnitOfWork, failure error, cb CommandCallback) *Entry {
	entry := NewEntry(NewCommand("DoSomething", aggregateID, nil), cb)
	entry.SetUnitOfWork(uow)
	if failure != nil {
		entry.SetFailure(failure)
	} else {
		entry.SetResult("ok")
	}
	return entry
}
