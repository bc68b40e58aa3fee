package commandbus

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/dyluth/cmdbus/pkg/commandbus"

// PublisherConfig configures one partition's publisher.
type PublisherConfig struct {
	Partition    int
	Store        EventStore            // Required
	Bus          EventBus              // Optional: nil stores events without publishing them
	Executor     Executor              // Required: runs result delivery
	Rollback     RollbackConfiguration // Defaults to RollbackOnUnexpected
	Interceptors []PublisherInterceptor

	PendingCreateCapacity int           // 0 = unbounded
	PendingCreateTTL      time.Duration // 0 = no expiry

	Logger *zap.Logger
}

// Publisher is the publication stage of one partition. It observes every entry of the
// shared stream but only acts on entries routed to its partition and on recovery signals.
//
// The blacklist and pending-create tracker are owned by the goroutine calling Run
// (or Handle) and are never shared with other partitions.
type Publisher struct {
	partition    int
	store        EventStore
	bus          EventBus
	executor     Executor
	rollback     RollbackConfiguration
	interceptors []PublisherInterceptor
	logger       *zap.Logger
	tracer       trace.Tracer

	blacklist map[string]struct{}
	pending   *pendingCreates
	snapshot  atomic.Pointer[[]string] // read-only copy of blacklist for inspection
}

// NewPublisher creates the publisher for cfg.Partition.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.Partition < 0 {
		return nil, fmt.Errorf("partition must be >= 0, got %d", cfg.Partition)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Rollback == nil {
		cfg.Rollback = RollbackOnUnexpected
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &Publisher{
		partition:    cfg.Partition,
		store:        cfg.Store,
		bus:          cfg.Bus,
		executor:     cfg.Executor,
		rollback:     cfg.Rollback,
		interceptors: cfg.Interceptors,
		logger:       cfg.Logger.With(zap.String("component", "publisher"), zap.Int("partition", cfg.Partition)),
		tracer:       otel.Tracer(tracerName),
		blacklist:    make(map[string]struct{}),
		pending:      newPendingCreates(cfg.PendingCreateCapacity, cfg.PendingCreateTTL),
	}
	p.snapshot.Store(&[]string{})
	return p, nil
}

// Partition returns the partition index this publisher owns.
func (p *Publisher) Partition() int {
	return p.partition
}

// Run consumes entries until ctx is cancelled or the channel is closed.
// It returns a non-nil error only when result delivery cannot be scheduled, which
// leaves the partition unable to honour its callbacks.
func (p *Publisher) Run(ctx context.Context, entries <-chan *Entry) error {
	p.logger.Info("publisher_started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("publisher_stopped", zap.String("reason", "context cancelled"))
			return nil
		case entry, ok := <-entries:
			if !ok {
				p.logger.Info("publisher_stopped", zap.String("reason", "stream closed"))
				return nil
			}
			if err := p.Handle(ctx, entry); err != nil {
				p.logger.Error("publisher_halted", zap.Uint64("sequence", entry.Sequence()), zap.Error(err))
				return err
			}
		}
	}
}

// Handle processes a single entry observed on the stream.
func (p *Publisher) Handle(ctx context.Context, entry *Entry) error {
	if entry.IsRecovery() {
		p.recoverAggregate(entry.AggregateIdentifier())
		return nil
	}
	if entry.Partition() != p.partition {
		return nil
	}

	ctx, span := p.tracer.Start(ctx, "commandbus.publish", trace.WithAttributes(
		attribute.Int("commandbus.partition", p.partition),
		attribute.String("commandbus.command", entry.Command().Name),
		attribute.String("commandbus.command_id", entry.Command().ID),
	))
	defer span.End()

	failure := p.settle(ctx, entry)
	if failure != nil {
		span.RecordError(failure)
		span.SetStatus(codes.Error, string(KindOf(failure)))
	}

	if failure != nil || entry.Callback() != nil {
		return report(p.executor, p.logger, entry.Callback(), entry.Result(), failure)
	}
	return nil
}

// IsBlacklisted reports whether aggregateID is quarantined by this partition.
// Safe to call from any goroutine.
func (p *Publisher) IsBlacklisted(aggregateID string) bool {
	for _, id := range *p.snapshot.Load() {
		if id == aggregateID {
			return true
		}
	}
	return false
}

// Blacklisted returns the quarantined aggregate identifiers, sorted.
// Safe to call from any goroutine.
func (p *Publisher) Blacklisted() []string {
	ids := *p.snapshot.Load()
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// settle resolves the entry to its final failure (nil on success). The unit of work's
// cleanup hook runs exactly once on every path out of here.
func (p *Publisher) settle(ctx context.Context, entry *Entry) error {
	uow := entry.UnitOfWork()
	if uow != nil {
		defer p.cleanup(uow, entry)
	}

	// Not-found is checked before the blacklist: the first not-found for a command may
	// be a create that has not become visible yet.
	if IsNotFound(entry.Failure()) && !p.pending.remove(entry.Command().ID) {
		return p.reschedule(entry)
	}

	if id := entry.AggregateIdentifier(); id != "" {
		if _, blacklisted := p.blacklist[id]; blacklisted {
			return p.reject(id)
		}
	}

	if uow == nil {
		return entry.Failure()
	}
	return p.processPublication(ctx, entry, uow)
}

func (p *Publisher) reschedule(entry *Entry) error {
	p.pending.put(entry.Command().ID)
	p.logger.Info("entry_rescheduled",
		zap.String("command_id", entry.Command().ID),
		zap.String("aggregate_id", entry.Command().AggregateID),
		zap.Int("pending_creates", p.pending.len()))

	return &AggregateStateCorruptedError{
		AggregateID: entry.Command().AggregateID,
		Message: "rescheduling command for execution: it was executed against a " +
			"potentially recently created aggregate",
	}
}

func (p *Publisher) reject(aggregateID string) error {
	p.logger.Debug("entry_rejected", zap.String("aggregate_id", aggregateID))
	return &AggregateBlacklistedError{
		AggregateID: aggregateID,
		Message: fmt.Sprintf("aggregate %s has been blacklisted and will be ignored "+
			"until its state has been recovered", aggregateID),
	}
}

func (p *Publisher) recoverAggregate(aggregateID string) {
	if _, ok := p.blacklist[aggregateID]; !ok {
		return
	}
	delete(p.blacklist, aggregateID)
	p.publishSnapshot()
	p.logger.Info("aggregate_recovered", zap.String("aggregate_id", aggregateID))
}

func (p *Publisher) processPublication(ctx context.Context, entry *Entry, uow UnitOfWork) (failure error) {
	aggregateID := entry.AggregateIdentifier()

	// Collaborator panics must not escape into the stream loop: they count as a
	// failed commit of this entry.
	defer func() {
		if r := recover(); r != nil {
			failure = p.quarantine(aggregateID, fmt.Errorf("panic during publication: %v", r))
		}
	}()

	p.invokeInterceptorChain(ctx, entry)
	failure = entry.Failure()

	if failure != nil && p.rollback.RollBackOn(failure) {
		return p.performRollback(uow, aggregateID, failure)
	}
	return p.performCommit(ctx, uow, aggregateID, failure)
}

func (p *Publisher) invokeInterceptorChain(ctx context.Context, entry *Entry) {
	if len(p.interceptors) == 0 {
		return
	}

	var chain InterceptorChain = InterceptorChainFunc(func(context.Context, Command) (any, error) {
		return entry.Result(), entry.Failure()
	})
	for i := len(p.interceptors) - 1; i >= 0; i-- {
		interceptor, next := p.interceptors[i], chain
		chain = InterceptorChainFunc(func(ctx context.Context, cmd Command) (any, error) {
			return interceptor(ctx, cmd, next)
		})
	}

	result, err := proceedSafely(ctx, chain, entry.Command())
	if err != nil {
		entry.SetFailure(err)
		return
	}
	entry.SetResult(result)
}

func proceedSafely(ctx context.Context, chain InterceptorChain, cmd Command) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in publisher interceptor: %v", r)
		}
	}()
	return chain.Proceed(ctx, cmd)
}

func (p *Publisher) performRollback(uow UnitOfWork, aggregateID string, cause error) error {
	uow.Rollback(cause)
	if aggregateID == "" {
		uow.OnRollback(cause)
		return cause
	}
	return p.notifyBlacklisted(uow, aggregateID, cause)
}

func (p *Publisher) performCommit(ctx context.Context, uow UnitOfWork, aggregateID string, failure error) error {
	uow.OnPrepareCommit()
	if err := p.storeAndPublish(ctx, uow); err != nil {
		return p.notifyBlacklisted(uow, aggregateID, err)
	}
	uow.OnAfterCommit()
	return failure
}

func (p *Publisher) storeAndPublish(ctx context.Context, uow UnitOfWork) error {
	if err := p.store.AppendEvents(ctx, uow.AggregateType(), uow.EventsToStore()); err != nil {
		return fmt.Errorf("failed to append events: %w", err)
	}
	if p.bus == nil {
		return nil
	}
	if events := uow.EventsToPublish(); len(events) > 0 {
		if err := p.bus.Publish(ctx, events...); err != nil {
			return fmt.Errorf("failed to publish events: %w", err)
		}
	}
	return nil
}

func (p *Publisher) notifyBlacklisted(uow UnitOfWork, aggregateID string, cause error) error {
	failure := p.quarantine(aggregateID, cause)
	uow.OnRollback(failure)
	return failure
}

// quarantine blacklists aggregateID and returns the failure wrapping cause. Without an
// identifier there is nothing to quarantine and the cause is reported as a CommitError.
func (p *Publisher) quarantine(aggregateID string, cause error) error {
	if aggregateID == "" {
		p.logger.Error("commit_failed", zap.Error(cause))
		return &CommitError{Cause: cause}
	}

	p.blacklist[aggregateID] = struct{}{}
	p.publishSnapshot()
	p.logger.Warn("aggregate_blacklisted", zap.String("aggregate_id", aggregateID), zap.Error(cause))

	return &AggregateBlacklistedError{
		AggregateID: aggregateID,
		Message: fmt.Sprintf("aggregate %s state corrupted; blacklisting the aggregate "+
			"until a recovery signal has been received", aggregateID),
		Cause: cause,
	}
}

func (p *Publisher) cleanup(uow UnitOfWork, entry *Entry) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("cleanup_panicked",
				zap.String("command_id", entry.Command().ID),
				zap.Any("panic", r))
		}
	}()
	uow.OnCleanup()
}

func (p *Publisher) publishSnapshot() {
	ids := make([]string, 0, len(p.blacklist))
	for id := range p.blacklist {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	p.snapshot.Store(&ids)
}
