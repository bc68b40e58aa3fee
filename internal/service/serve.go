package service

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dyluth/cmdbus/internal/config"
	"github.com/dyluth/cmdbus/internal/tracing"
	"github.com/dyluth/cmdbus/pkg/redisbus"
)

// Connect parses cfg.RedisURL, creates an instance-scoped client and verifies
// connectivity.
func Connect(ctx context.Context, cfg *config.CmdbusConfig) (*redisbus.Client, error) {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client, err := redisbus.NewClient(redisOpts, cfg.Instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis not accessible at %s: %w", cfg.RedisURL, err)
	}
	return client, nil
}

// Serve installs tracing, connects to Redis and runs the service until ctx is
// cancelled.
func Serve(ctx context.Context, cfg *config.CmdbusConfig, logger *zap.Logger) error {
	settings, err := tracing.SettingsFromEnv()
	if err != nil {
		return err
	}
	shutdownTracing, err := tracing.Setup(ctx, "cmdbus-"+cfg.Instance, settings, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracing_shutdown_failed", zap.Error(err))
		}
	}()

	client, err := Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	svc, err := New(client, cfg, logger)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}
