package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/cmdbus/pkg/commandbus"
)

// ResultStatus is the terminal state of a submitted command.
type ResultStatus string

const (
	ResultSucceeded ResultStatus = "succeeded"
	ResultFailed    ResultStatus = "failed"
)

// CommandResult is the outcome of a queued command, stored at cmdbus:{instance}:result:{id}.
type CommandResult struct {
	CommandID   string          `json:"command_id"`
	Status      ResultStatus    `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Kind        string          `json:"kind,omitempty"`
	AggregateID string          `json:"aggregate_id,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// EnqueueCommand submits a command to the instance intake queue.
func (c *Client) EnqueueCommand(ctx context.Context, cmd commandbus.Command) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("invalid command: %w", err)
	}
	cmdJSON, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	if err := c.rdb.RPush(ctx, CommandQueueKey(c.instanceName), cmdJSON).Err(); err != nil {
		return fmt.Errorf("failed to enqueue command: %w", err)
	}
	return nil
}

// NextCommand pops the oldest queued command, blocking up to timeout.
// Returns redis.Nil when the timeout expires with an empty queue; use IsNotFound().
func (c *Client) NextCommand(ctx context.Context, timeout time.Duration) (*commandbus.Command, error) {
	res, err := c.rdb.BLPop(ctx, timeout, CommandQueueKey(c.instanceName)).Result()
	if err != nil {
		return nil, err
	}
	// BLPOP returns [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply of %d elements", len(res))
	}

	var cmd commandbus.Command
	if err := json.Unmarshal([]byte(res[1]), &cmd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queued command: %w", err)
	}
	return &cmd, nil
}

// QueueLength returns the number of commands waiting in the intake queue.
func (c *Client) QueueLength(ctx context.Context) (int64, error) {
	n, err := c.rdb.LLen(ctx, CommandQueueKey(c.instanceName)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

// StoreResult records a command outcome. A positive ttl expires the result.
func (c *Client) StoreResult(ctx context.Context, result CommandResult, ttl time.Duration) error {
	if result.CommandID == "" {
		return fmt.Errorf("command id cannot be empty")
	}

	hash := map[string]interface{}{
		"command_id":      result.CommandID,
		"status":          string(result.Status),
		"result":          string(result.Result),
		"error":           result.Error,
		"kind":            result.Kind,
		"aggregate_id":    result.AggregateID,
		"completed_at_ms": result.CompletedAt.UnixMilli(),
	}

	key := ResultKey(c.instanceName, result.CommandID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, hash)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write result to Redis: %w", err)
	}
	return nil
}

// GetResult retrieves the outcome of a command.
// Returns (nil, redis.Nil) if no outcome has been recorded yet.
func (c *Client) GetResult(ctx context.Context, commandID string) (*CommandResult, error) {
	hashData, err := c.rdb.HGetAll(ctx, ResultKey(c.instanceName, commandID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read result from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	completedAtMs, _ := strconv.ParseInt(hashData["completed_at_ms"], 10, 64)

	result := &CommandResult{
		CommandID:   hashData["command_id"],
		Status:      ResultStatus(hashData["status"]),
		Error:       hashData["error"],
		Kind:        hashData["kind"],
		AggregateID: hashData["aggregate_id"],
		CompletedAt: time.UnixMilli(completedAtMs).UTC(),
	}
	if raw := hashData["result"]; raw != "" {
		result.Result = json.RawMessage(raw)
	}
	return result, nil
}

// WaitResult polls for the outcome of a command until it is recorded or ctx expires.
func (c *Client) WaitResult(ctx context.Context, commandID string, interval time.Duration) (*CommandResult, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := c.GetResult(ctx, commandID)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, redis.Nil) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no result for command %s: %w", commandID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ScanResults returns the IDs of stored results whose command ID starts with prefix.
func (c *Client) ScanResults(ctx context.Context, prefix string) ([]string, error) {
	keyPrefix := ResultKey(c.instanceName, "")
	pattern := keyPrefix + prefix + "*"

	var ids []string
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(keyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan results: %w", err)
	}
	return ids, nil
}
