package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	manager, err := NewManager(context.Background(), Config{
		Addr:            mr.Addr(),
		ConnectAttempts: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewManager(t *testing.T) {
	_, manager := setupTestRedis(t)

	assert.NotNil(t, manager.redis)
	assert.NotNil(t, manager.logger)
	assert.NoError(t, manager.Ping(context.Background()))
}

func TestNewManager_Unreachable(t *testing.T) {
	_, err := NewManager(context.Background(), Config{
		Addr:            "127.0.0.1:1",
		ConnectAttempts: 2,
	}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestManager_SetAndGet(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "test-key", "test-value", time.Minute))

	value, err := manager.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, "test-value", value)
}

func TestManager_GetNonExistent(t *testing.T) {
	_, manager := setupTestRedis(t)

	value, err := manager.Get(context.Background(), "non-existent")
	assert.True(t, IsCacheMiss(err))
	assert.Equal(t, "", value)
}

func TestManager_TTLExpiry(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "short", "v", 2*time.Second))
	mr.FastForward(3 * time.Second)

	_, err := manager.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Delete(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k1", "v1", 0))
	require.NoError(t, manager.Set(ctx, "k2", "v2", 0))
	require.NoError(t, manager.Delete(ctx, "k1", "k2"))
	require.NoError(t, manager.Delete(ctx))

	_, err := manager.Get(ctx, "k1")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_PushCapped(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c", "d"} {
		require.NoError(t, manager.PushCapped(ctx, "list", v, 3, time.Hour))
	}

	vals, err := manager.Range(ctx, "list", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b"}, vals)
	assert.Equal(t, time.Hour, mr.TTL("list"))

	vals, err = manager.Range(ctx, "list", 0)
	require.NoError(t, err)
	assert.Empty(t, vals)
}

func TestManager_CountKeys(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	for i, k := range []string{"msg_response:a", "msg_response:b", "msg_history:u1", "other"} {
		require.NoError(t, manager.Set(ctx, k, string(rune('0'+i)), 0))
	}

	n, err := manager.CountKeys(ctx, "msg_response:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, errClosed)
	assert.ErrorIs(t, manager.Set(ctx, "k", "v", 0), errClosed)
	assert.ErrorIs(t, manager.Ping(ctx), errClosed)
}
