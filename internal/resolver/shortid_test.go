package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/cmdbus/pkg/redisbus"
)

func setupClient(t *testing.T, ids ...string) *redisbus.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redisbus.NewClient(&redis.Options{Addr: mr.Addr()}, "resolver-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	for _, id := range ids {
		require.NoError(t, client.StoreResult(context.Background(), redisbus.CommandResult{
			CommandID: id,
			Status:    redisbus.ResultSucceeded,
		}, 0))
	}
	return client
}

func TestResolveCommandID(t *testing.T) {
	ctx := context.Background()

	t.Run("exact id", func(t *testing.T) {
		client := setupClient(t, "a1b2c3d4-0000-0000-0000-000000000001", "x")
		id, err := ResolveCommandID(ctx, client, "x")
		require.NoError(t, err)
		assert.Equal(t, "x", id)
	})

	t.Run("unique prefix", func(t *testing.T) {
		client := setupClient(t, "a1b2c3d4-0000-0000-0000-000000000001", "ffff0000-0000-0000-0000-000000000002")
		id, err := ResolveCommandID(ctx, client, "a1b2c3")
		require.NoError(t, err)
		assert.Equal(t, "a1b2c3d4-0000-0000-0000-000000000001", id)
	})

	t.Run("prefix too short", func(t *testing.T) {
		client := setupClient(t, "a1b2c3d4-0000-0000-0000-000000000001")
		_, err := ResolveCommandID(ctx, client, "a1b")
		assert.True(t, IsNotFoundError(err))
	})

	t.Run("no match", func(t *testing.T) {
		client := setupClient(t)
		_, err := ResolveCommandID(ctx, client, "deadbeef")
		assert.True(t, IsNotFoundError(err))
		assert.Contains(t, err.Error(), "deadbeef")
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		client := setupClient(t,
			"a1b2c3d4-0000-0000-0000-000000000002",
			"a1b2c3d4-0000-0000-0000-000000000001")
		_, err := ResolveCommandID(ctx, client, "a1b2c3d4")
		require.True(t, IsAmbiguousError(err))

		ambiguous := err.(*AmbiguousError)
		assert.Equal(t, "a1b2c3d4-0000-0000-0000-000000000001", ambiguous.Matches[0])
	})
}

func TestFormatAmbiguousError(t *testing.T) {
	var matches []string
	for i := 0; i < 12; i++ {
		matches = append(matches, fmt.Sprintf("cmd-%02d", i))
	}

	msg := FormatAmbiguousError(&AmbiguousError{ShortID: "cmd-", Matches: matches})
	assert.Contains(t, msg, "matches 12 commands")
	assert.Contains(t, msg, "cmd-09")
	assert.NotContains(t, msg, "cmd-10")
	assert.Contains(t, msg, "...and 2 more")
}
