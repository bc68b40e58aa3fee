// Package service runs the cmdbusd daemon: it pops commands from the Redis intake
// queue, dispatches them on the command bus, stores every outcome back in Redis
// and applies recovery signals published by operators.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dyluth/cmdbus/internal/config"
	"github.com/dyluth/cmdbus/internal/ledger"
	"github.com/dyluth/cmdbus/pkg/commandbus"
	"github.com/dyluth/cmdbus/pkg/redisbus"
)

const (
	defaultPollTimeout     = time.Second
	defaultShutdownTimeout = 10 * time.Second
	intakeRetryDelay       = time.Second
	resultWriteTimeout     = 5 * time.Second
)

var tracer = otel.Tracer("github.com/dyluth/cmdbus/internal/service")

// Service wires the ledger domain, the command bus and Redis together.
type Service struct {
	client *redisbus.Client
	bus    *commandbus.Bus
	cfg    *config.CmdbusConfig
	logger *zap.Logger
	health *HealthServer

	pollTimeout     time.Duration
	shutdownTimeout time.Duration
}

// New builds the ledger invoker and the command bus for cfg. The bus is not
// started until Run.
func New(client *redisbus.Client, cfg *config.CmdbusConfig, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	rollback, err := cfg.RollbackPolicy()
	if err != nil {
		return nil, fmt.Errorf("invalid rollback policy: %w", err)
	}

	invoker := ledger.NewInvoker(client, logger)
	bus, err := commandbus.New(cfg.BusSettings(), invoker, client,
		commandbus.WithEventBus(client),
		commandbus.WithRollbackConfiguration(rollback),
		commandbus.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create command bus: %w", err)
	}

	s := &Service{
		client:          client,
		bus:             bus,
		cfg:             cfg,
		logger:          logger.With(zap.String("instance", client.InstanceName())),
		pollTimeout:     defaultPollTimeout,
		shutdownTimeout: defaultShutdownTimeout,
	}
	if cfg.HealthAddr != "" {
		s.health = NewHealthServer(cfg.HealthAddr, client, bus, logger)
	}
	return s, nil
}

// Bus returns the command bus run by the service.
func (s *Service) Bus() *commandbus.Bus {
	return s.bus
}

// Run processes commands until ctx is cancelled or the bus fails fatally.
// On cancellation the bus drains what it has already admitted before Run returns.
func (s *Service) Run(ctx context.Context) error {
	if s.health != nil {
		if err := s.health.Start(); err != nil {
			return fmt.Errorf("failed to start health server: %w", err)
		}
		defer s.health.Shutdown(context.Background())
	}

	// The bus outlives ctx so it can drain on shutdown.
	if err := s.bus.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start command bus: %w", err)
	}

	recovery, err := s.client.SubscribeRecovery(ctx)
	if err != nil {
		s.stopBus()
		return fmt.Errorf("failed to subscribe to recovery signals: %w", err)
	}
	defer recovery.Close()

	s.logger.Info("service_started",
		zap.Int("partitions", s.bus.Partitions()),
		zap.String("rollback", s.cfg.Bus.Rollback))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.runIntake(gctx) })
	g.Go(func() error { return s.runRecovery(gctx, recovery) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return s.stopBus()
		case <-s.bus.Done():
			if err := s.bus.Wait(); err != nil {
				return fmt.Errorf("command bus stopped: %w", err)
			}
			return errors.New("command bus stopped unexpectedly")
		}
	})

	err = g.Wait()
	s.logger.Info("service_stopped", zap.Error(err))
	return err
}

func (s *Service) stopBus() error {
	stopCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return s.bus.Stop(stopCtx)
}

// runIntake pops queued commands and dispatches them in queue order.
func (s *Service) runIntake(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		cmd, err := s.client.NextCommand(ctx, s.pollTimeout)
		if err != nil {
			if redisbus.IsNotFound(err) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("intake_failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(intakeRetryDelay):
			}
			continue
		}

		s.dispatch(ctx, *cmd)
	}
}

func (s *Service) dispatch(ctx context.Context, cmd commandbus.Command) {
	ctx, span := tracer.Start(ctx, "cmdbusd.dispatch")
	span.SetAttributes(
		attribute.String("command.id", cmd.ID),
		attribute.String("command.name", cmd.Name),
		attribute.String("aggregate.id", cmd.AggregateID),
	)
	defer span.End()

	s.logger.Debug("command_received",
		zap.String("command_id", cmd.ID),
		zap.String("command", cmd.Name),
		zap.String("aggregate_id", cmd.AggregateID))

	if err := s.bus.Dispatch(ctx, cmd, s.resultWriter(cmd)); err != nil {
		span.RecordError(err)
		s.logger.Error("dispatch_failed", zap.String("command_id", cmd.ID), zap.Error(err))
		s.storeResult(cmd, nil, err)
	}
}

// resultWriter returns the callback that records a command outcome in Redis.
func (s *Service) resultWriter(cmd commandbus.Command) commandbus.CommandCallback {
	return commandbus.CallbackFunc(func(result any, err error) {
		s.storeResult(cmd, result, err)
	})
}

func (s *Service) storeResult(cmd commandbus.Command, result any, failure error) {
	record := redisbus.CommandResult{
		CommandID:   cmd.ID,
		Status:      redisbus.ResultSucceeded,
		AggregateID: cmd.AggregateID,
		CompletedAt: time.Now().UTC(),
	}
	if failure != nil {
		record.Status = redisbus.ResultFailed
		record.Error = failure.Error()
		record.Kind = string(commandbus.KindOf(failure))
	} else if result != nil {
		body, err := json.Marshal(result)
		if err != nil {
			s.logger.Error("result_encoding_failed", zap.String("command_id", cmd.ID), zap.Error(err))
		} else {
			record.Result = body
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), resultWriteTimeout)
	defer cancel()
	if err := s.client.StoreResult(ctx, record, s.cfg.Results.TTL); err != nil {
		s.logger.Error("result_store_failed", zap.String("command_id", cmd.ID), zap.Error(err))
		return
	}

	s.logger.Info("command_completed",
		zap.String("command_id", cmd.ID),
		zap.String("command", cmd.Name),
		zap.String("status", string(record.Status)),
		zap.String("kind", record.Kind))
}

// runRecovery forwards recovery signals to the bus.
func (s *Service) runRecovery(ctx context.Context, sub *redisbus.Subscription[redisbus.RecoverySignal]) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case signal, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := s.bus.Recover(ctx, signal.AggregateID); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("recovery_failed", zap.String("aggregate_id", signal.AggregateID), zap.Error(err))
				continue
			}
			s.logger.Info("recovery_applied",
				zap.String("aggregate_id", signal.AggregateID),
				zap.String("requested_by", signal.RequestedBy))

		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			s.logger.Warn("recovery_subscription_error", zap.Error(err))
		}
	}
}
