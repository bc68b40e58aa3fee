package commandbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds the static shape of a Bus. Partitions cannot change after New.
type Config struct {
	Partitions int // Number of publisher partitions (>= 1)
	BufferSize int // Per-partition stream buffer

	ReporterWorkers   int // Workers delivering results (default pool only)
	ReporterQueueSize int // Extra in-flight deliveries before the pool rejects (default pool only)

	PendingCreateCapacity int
	PendingCreateTTL      time.Duration
}

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		Partitions:            4,
		BufferSize:            1024,
		ReporterWorkers:       8,
		ReporterQueueSize:     4096,
		PendingCreateCapacity: 10000,
		PendingCreateTTL:      5 * time.Minute,
	}
}

// Option customizes a Bus.
type Option func(*Bus)

// WithLogger sets the logger used by the bus and its publishers.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// WithEventBus publishes committed events on eventBus.
func WithEventBus(eventBus EventBus) Option {
	return func(b *Bus) { b.eventBus = eventBus }
}

// WithExecutor delivers results on executor instead of the bus-owned worker pool.
// The caller keeps ownership: the bus never closes it.
func WithExecutor(executor Executor) Option {
	return func(b *Bus) { b.executor = executor }
}

// WithRollbackConfiguration sets the rollback policy of every partition.
func WithRollbackConfiguration(rollback RollbackConfiguration) Option {
	return func(b *Bus) { b.rollback = rollback }
}

// WithPublisherInterceptors installs interceptors run by the publisher before commit.
func WithPublisherInterceptors(interceptors ...PublisherInterceptor) Option {
	return func(b *Bus) { b.interceptors = append(b.interceptors, interceptors...) }
}

// Bus is the front door of the pipeline. Dispatch runs the business-logic stage,
// routes the entry to a partition and appends it to the shared stream; one
// Publisher per partition commits, publishes and reports the outcome.
type Bus struct {
	cfg          Config
	invoker      Invoker
	store        EventStore
	eventBus     EventBus
	executor     Executor
	pool         *WorkerPool // non-nil when the bus owns its executor
	rollback     RollbackConfiguration
	interceptors []PublisherInterceptor
	logger       *zap.Logger

	stream     *Stream
	publishers []*Publisher
	feeds      []<-chan *Entry

	// dispatchMu serializes invocation and append so stream order matches the order
	// in which business logic observed aggregate state.
	dispatchMu sync.Mutex

	mu      sync.Mutex
	started bool
	done    chan struct{}
	err     error
}

// New creates a bus with cfg.Partitions publishers. Zero config fields take the
// values of DefaultConfig.
func New(cfg Config, invoker Invoker, store EventStore, opts ...Option) (*Bus, error) {
	if invoker == nil {
		return nil, fmt.Errorf("invoker is required")
	}
	if store == nil {
		return nil, fmt.Errorf("event store is required")
	}
	cfg = withDefaults(cfg)

	b := &Bus{
		cfg:     cfg,
		invoker: invoker,
		store:   store,
		logger:  zap.NewNop(),
		stream:  NewStream(cfg.BufferSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.executor == nil {
		b.pool = NewWorkerPool(cfg.ReporterWorkers, cfg.ReporterQueueSize)
		b.executor = b.pool
	}

	for i := range cfg.Partitions {
		pub, err := NewPublisher(PublisherConfig{
			Partition:             i,
			Store:                 store,
			Bus:                   b.eventBus,
			Executor:              b.executor,
			Rollback:              b.rollback,
			Interceptors:          b.interceptors,
			PendingCreateCapacity: cfg.PendingCreateCapacity,
			PendingCreateTTL:      cfg.PendingCreateTTL,
			Logger:                b.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create publisher %d: %w", i, err)
		}
		feed, err := b.stream.Subscribe()
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe publisher %d: %w", i, err)
		}
		b.publishers = append(b.publishers, pub)
		b.feeds = append(b.feeds, feed)
	}

	return b, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Partitions <= 0 {
		cfg.Partitions = def.Partitions
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.ReporterWorkers <= 0 {
		cfg.ReporterWorkers = def.ReporterWorkers
	}
	if cfg.ReporterQueueSize <= 0 {
		cfg.ReporterQueueSize = def.ReporterQueueSize
	}
	return cfg
}

// Partitions returns the number of partitions.
func (b *Bus) Partitions() int {
	return b.cfg.Partitions
}

// Start launches one goroutine per partition. The publishers stop when ctx is
// cancelled, when Stop is called, or when any partition fails fatally; in the last
// case every partition is stopped and Wait returns the failure.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return fmt.Errorf("bus already started")
	}
	b.started = true

	g, gctx := errgroup.WithContext(ctx)
	for i, pub := range b.publishers {
		feed := b.feeds[i]
		g.Go(func() error {
			return pub.Run(gctx, feed)
		})
	}

	b.logger.Info("bus_started", zap.Int("partitions", b.cfg.Partitions))

	go func() {
		err := g.Wait()
		b.stream.Close()
		if b.pool != nil {
			b.pool.Close()
		}
		b.err = err
		b.logger.Info("bus_stopped", zap.Error(err))
		close(b.done)
	}()
	return nil
}

// Done is closed once every partition has stopped.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until every partition has stopped and returns the fatal error, if any.
func (b *Bus) Wait() error {
	<-b.done
	return b.err
}

// Stop closes the stream, lets every partition drain what it has buffered and waits
// for them to finish or for ctx to expire.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()

	b.stream.Close()
	if !started {
		if b.pool != nil {
			b.pool.Close()
		}
		return nil
	}

	select {
	case <-b.done:
		return b.err
	case <-ctx.Done():
		return fmt.Errorf("bus did not stop in time: %w", ctx.Err())
	}
}

// Dispatch runs the business-logic stage for cmd and appends the result to the
// stream. The outcome is delivered to callback; a nil callback only hears about
// failures through the logs. A non-nil error means the command was not admitted and
// callback will not be called.
//
// Dispatch is serialized across the whole bus, invocation included. When any
// partition's buffer is full, Append blocks and every other Dispatch waits behind
// it until that partition catches up or ctx is done.
func (b *Bus) Dispatch(ctx context.Context, cmd Command, callback CommandCallback) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("invalid command: %w", err)
	}
	entry := NewEntry(cmd, callback)

	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	b.invoke(ctx, entry)
	entry.route(b.cfg.Partitions)

	if err := b.stream.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append command %s: %w", cmd.ID, err)
	}
	return nil
}

// DispatchAndWait dispatches cmd and blocks until its outcome is delivered.
func (b *Bus) DispatchAndWait(ctx context.Context, cmd Command) (any, error) {
	future := NewFutureCallback()
	if err := b.Dispatch(ctx, cmd, future); err != nil {
		return nil, err
	}
	return future.Wait(ctx)
}

// Recover appends a recovery signal for aggregateID. Every partition observes it and
// the owning partition removes the aggregate from its blacklist.
func (b *Bus) Recover(ctx context.Context, aggregateID string) error {
	if aggregateID == "" {
		return fmt.Errorf("aggregate id is required")
	}

	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	if r, ok := b.invoker.(Recoverer); ok {
		r.Recover(aggregateID)
	}
	if err := b.stream.Append(ctx, NewRecoveryEntry(aggregateID)); err != nil {
		return fmt.Errorf("failed to append recovery signal for %s: %w", aggregateID, err)
	}
	b.logger.Info("recovery_signal_sent", zap.String("aggregate_id", aggregateID))
	return nil
}

// Blacklisted returns the quarantined aggregate identifiers of every partition.
func (b *Bus) Blacklisted() []string {
	var ids []string
	for _, pub := range b.publishers {
		ids = append(ids, pub.Blacklisted()...)
	}
	return ids
}

// IsBlacklisted reports whether any partition has quarantined aggregateID.
func (b *Bus) IsBlacklisted(aggregateID string) bool {
	for _, pub := range b.publishers {
		if pub.IsBlacklisted(aggregateID) {
			return true
		}
	}
	return false
}

func (b *Bus) invoke(ctx context.Context, entry *Entry) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("invoker_panicked",
				zap.String("command_id", entry.Command().ID),
				zap.Any("panic", r))
			entry.SetFailure(fmt.Errorf("panic in command handler: %v", r))
		}
	}()
	b.invoker.Invoke(ctx, entry)
	if entry.Failure() == nil && entry.UnitOfWork() == nil {
		entry.SetFailure(errors.New("invoker produced no unit of work"))
	}
}
