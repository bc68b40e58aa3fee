package redisbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/cmdbus/pkg/commandbus"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func newEvent(aggregateID string, sequence int64, eventType string) commandbus.EventMessage {
	return commandbus.EventMessage{
		ID:          uuid.New().String(),
		AggregateID: aggregateID,
		Sequence:    sequence,
		Type:        eventType,
		Payload:     json.RawMessage(`{"amount":10}`),
		Timestamp:   time.UnixMilli(time.Now().UnixMilli()).UTC(),
	}
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.Equal(t, "test-instance", client.InstanceName())
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestPing(t *testing.T) {
	client, _ := setupTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestAppendEvents(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	t.Run("stores events in the aggregate stream", func(t *testing.T) {
		events := []commandbus.EventMessage{
			newEvent("acc-1", 0, "AccountOpened"),
			newEvent("acc-1", 1, "MoneyDeposited"),
		}
		require.NoError(t, client.AppendEvents(ctx, "Account", events))

		stored, err := client.ReadEvents(ctx, "Account", "acc-1")
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, events[0].ID, stored[0].ID)
		assert.Equal(t, "AccountOpened", stored[0].Type)
		assert.Equal(t, int64(1), stored[1].Sequence)
		assert.JSONEq(t, `{"amount":10}`, string(stored[1].Payload))
		assert.True(t, events[1].Timestamp.Equal(stored[1].Timestamp))

		assert.True(t, mr.Exists("cmdbus:test-instance:events:Account:acc-1"))
	})

	t.Run("rejects append at a stale sequence", func(t *testing.T) {
		err := client.AppendEvents(ctx, "Account", []commandbus.EventMessage{newEvent("acc-1", 0, "AccountOpened")})
		assert.ErrorIs(t, err, ErrConcurrencyConflict)

		stored, err := client.ReadEvents(ctx, "Account", "acc-1")
		require.NoError(t, err)
		assert.Len(t, stored, 2, "conflicting append must not write")
	})

	t.Run("continues the stream at the next sequence", func(t *testing.T) {
		err := client.AppendEvents(ctx, "Account", []commandbus.EventMessage{newEvent("acc-1", 2, "MoneyWithdrawn")})
		require.NoError(t, err)

		stored, err := client.ReadEvents(ctx, "Account", "acc-1")
		require.NoError(t, err)
		assert.Len(t, stored, 3)
	})

	t.Run("indexes aggregates by type", func(t *testing.T) {
		require.NoError(t, client.AppendEvents(ctx, "Account", []commandbus.EventMessage{newEvent("acc-2", 0, "AccountOpened")}))

		ids, err := client.AggregateIDs(ctx, "Account")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"acc-1", "acc-2"}, ids)
	})

	t.Run("empty append is a no-op", func(t *testing.T) {
		assert.NoError(t, client.AppendEvents(ctx, "Account", nil))
	})

	t.Run("rejects events without aggregate id", func(t *testing.T) {
		err := client.AppendEvents(ctx, "Account", []commandbus.EventMessage{newEvent("", 0, "Orphan")})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no aggregate id")
	})

	t.Run("rejects empty aggregate type", func(t *testing.T) {
		err := client.AppendEvents(ctx, "", []commandbus.EventMessage{newEvent("acc-9", 0, "AccountOpened")})
		assert.Error(t, err)
	})
}

func TestReadEvents(t *testing.T) {
	client, _ := setupTestClient(t)

	t.Run("unknown aggregate has no events", func(t *testing.T) {
		events, err := client.ReadEvents(context.Background(), "Account", "missing")
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestPublishAndSubscribeEvents(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("receives published events", func(t *testing.T) {
		sub, err := client.SubscribeEvents(ctx)
		require.NoError(t, err)
		defer sub.Close()

		event := newEvent("acc-1", 0, "AccountOpened")
		require.NoError(t, client.Publish(ctx, event))

		select {
		case received := <-sub.Events():
			assert.Equal(t, event.ID, received.ID)
			assert.Equal(t, "AccountOpened", received.Type)
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for event")
		}
	})

	t.Run("delivers events in publish order", func(t *testing.T) {
		sub, err := client.SubscribeEvents(ctx)
		require.NoError(t, err)
		defer sub.Close()

		first := newEvent("acc-2", 0, "AccountOpened")
		second := newEvent("acc-2", 1, "MoneyDeposited")
		require.NoError(t, client.Publish(ctx, first, second))

		for _, want := range []string{first.ID, second.ID} {
			select {
			case received := <-sub.Events():
				assert.Equal(t, want, received.ID)
			case <-time.After(1 * time.Second):
				t.Fatal("timeout waiting for event")
			}
		}
	})

	t.Run("cleanup on Close", func(t *testing.T) {
		sub, err := client.SubscribeEvents(ctx)
		require.NoError(t, err)
		assert.NotNil(t, sub.Errors())

		assert.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())

		select {
		case _, ok := <-sub.Events():
			assert.False(t, ok, "events channel should be closed")
		case <-time.After(1 * time.Second):
			t.Fatal("events channel not closed")
		}
	})
}

func TestRecoverySignals(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("delivers recovery signals", func(t *testing.T) {
		sub, err := client.SubscribeRecovery(ctx)
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, client.PublishRecovery(ctx, RecoverySignal{AggregateID: "acc-1", RequestedBy: "ops"}))

		select {
		case signal := <-sub.Events():
			assert.Equal(t, "acc-1", signal.AggregateID)
			assert.Equal(t, "ops", signal.RequestedBy)
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for recovery signal")
		}
	})

	t.Run("rejects empty aggregate id", func(t *testing.T) {
		err := client.PublishRecovery(ctx, RecoverySignal{})
		assert.Error(t, err)
	})
}

func TestCommandQueue(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("pops commands in submission order", func(t *testing.T) {
		first := commandbus.NewCommand("OpenAccount", "acc-1", json.RawMessage(`{"owner":"ada"}`))
		second := commandbus.NewCommand("Deposit", "acc-1", json.RawMessage(`{"amount":5}`))
		require.NoError(t, client.EnqueueCommand(ctx, first))
		require.NoError(t, client.EnqueueCommand(ctx, second))

		n, err := client.QueueLength(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		got, err := client.NextCommand(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, "OpenAccount", got.Name)
		assert.JSONEq(t, `{"owner":"ada"}`, string(got.Payload))

		got, err = client.NextCommand(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)
	})

	t.Run("times out on an empty queue", func(t *testing.T) {
		_, err := client.NextCommand(ctx, 100*time.Millisecond)
		assert.True(t, IsNotFound(err))
	})

	t.Run("rejects invalid commands", func(t *testing.T) {
		err := client.EnqueueCommand(ctx, commandbus.Command{Name: "Deposit"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid command")
	})
}

func TestCommandResults(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	t.Run("stores and retrieves results", func(t *testing.T) {
		result := CommandResult{
			CommandID:   uuid.New().String(),
			Status:      ResultSucceeded,
			Result:      json.RawMessage(`{"balance":10}`),
			AggregateID: "acc-1",
			CompletedAt: time.UnixMilli(time.Now().UnixMilli()).UTC(),
		}
		require.NoError(t, client.StoreResult(ctx, result, time.Minute))

		got, err := client.GetResult(ctx, result.CommandID)
		require.NoError(t, err)
		assert.Equal(t, ResultSucceeded, got.Status)
		assert.JSONEq(t, `{"balance":10}`, string(got.Result))
		assert.Equal(t, "acc-1", got.AggregateID)
		assert.True(t, result.CompletedAt.Equal(got.CompletedAt))

		assert.Equal(t, time.Minute, mr.TTL(ResultKey("test-instance", result.CommandID)))
	})

	t.Run("stores failures", func(t *testing.T) {
		result := CommandResult{
			CommandID: uuid.New().String(),
			Status:    ResultFailed,
			Error:     "insufficient funds",
			Kind:      "business",
		}
		require.NoError(t, client.StoreResult(ctx, result, 0))

		got, err := client.GetResult(ctx, result.CommandID)
		require.NoError(t, err)
		assert.Equal(t, ResultFailed, got.Status)
		assert.Equal(t, "insufficient funds", got.Error)
		assert.Equal(t, "business", got.Kind)
		assert.Nil(t, got.Result)
	})

	t.Run("missing result is not found", func(t *testing.T) {
		_, err := client.GetResult(ctx, "missing")
		assert.True(t, IsNotFound(err))
	})

	t.Run("WaitResult returns once the result is stored", func(t *testing.T) {
		commandID := uuid.New().String()
		go func() {
			time.Sleep(50 * time.Millisecond)
			client.StoreResult(ctx, CommandResult{CommandID: commandID, Status: ResultSucceeded}, 0)
		}()

		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		got, err := client.WaitResult(waitCtx, commandID, 10*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, commandID, got.CommandID)
	})

	t.Run("WaitResult honours context deadline", func(t *testing.T) {
		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err := client.WaitResult(waitCtx, "never", 10*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestInstanceNamespacing(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	defer mr.Close()
	ctx := context.Background()

	a, err := NewClient(&redis.Options{Addr: mr.Addr()}, "instance-a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewClient(&redis.Options{Addr: mr.Addr()}, "instance-b")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.AppendEvents(ctx, "Account", []commandbus.EventMessage{newEvent("acc-1", 0, "AccountOpened")}))

	events, err := b.ReadEvents(ctx, "Account", "acc-1")
	require.NoError(t, err)
	assert.Empty(t, events, "instance-b must not see instance-a's events")

	// Same aggregate in another instance starts its own stream
	assert.NoError(t, b.AppendEvents(ctx, "Account", []commandbus.EventMessage{newEvent("acc-1", 0, "AccountOpened")}))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(redis.Nil))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(assert.AnError))
}
