package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func TestResponseKey_Normalization(t *testing.T) {
	assert.Equal(t, ResponseKey("Shipping time?"), ResponseKey("shipping time? "))
	assert.Equal(t, ResponseKey("Return policy?"), ResponseKey("  return POLICY?\n"))
	assert.NotEqual(t, ResponseKey("return policy"), ResponseKey("refund policy"))

	key := ResponseKey("How long does shipping take?")
	assert.True(t, strings.HasPrefix(key, ResponseKeyPrefix))
	// sha256 hex
	assert.Len(t, strings.TrimPrefix(key, ResponseKeyPrefix), 64)
	assert.Equal(t, ResponseKeyPrefix+"0acab6247e93fbd12982a3a161f430cada9a48bcb91b74d2e72c24277ad025ff", ResponseKey("  Shipping Time?"))
}

func TestResponseKey_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		q := rapid.StringMatching(`[A-Za-z0-9 ?]{0,40}`).Draw(rt, "query")
		pad := rapid.StringMatching(`[ \t\n]{0,3}`).Draw(rt, "pad")

		k := ResponseKey(q)
		if k != ResponseKey(q) {
			rt.Fatalf("key not deterministic for %q", q)
		}
		if k != ResponseKey(pad+strings.ToUpper(q)+pad) {
			rt.Fatalf("key changed under case/whitespace variation for %q", q)
		}
		if k != ResponseKey(NormalizeQuery(q)) {
			rt.Fatalf("normalization not idempotent for %q", q)
		}
	})
}

func TestRedisResponseCache(t *testing.T) {
	mr, manager := setupTestRedis(t)
	c := NewRedisResponseCache(manager, zap.NewNop())
	ctx := context.Background()

	_, err := c.Get(ctx, "What is your return policy?")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, c.Put(ctx, "What is your return policy?", "30 days.", "user-1", 24*time.Hour))

	got, err := c.Get(ctx, "  what is your RETURN policy?")
	require.NoError(t, err)
	assert.Equal(t, "What is your return policy?", got.Query)
	assert.Equal(t, "30 days.", got.Response)
	assert.Equal(t, "user-1", got.UserID)
	assert.False(t, got.Timestamp.IsZero())

	key := ResponseKey("What is your return policy?")
	assert.Equal(t, 24*time.Hour, mr.TTL(key))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "redis", stats.Backend)
	assert.Equal(t, int64(1), stats.CachedAnswers)
	assert.True(t, c.Available())

	mr.FastForward(25 * time.Hour)
	_, err = c.Get(ctx, "What is your return policy?")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisResponseCache_MalformedEntryIsMiss(t *testing.T) {
	mr, manager := setupTestRedis(t)
	c := NewRedisResponseCache(manager, nil)

	require.NoError(t, mr.Set(ResponseKey("q"), "{not json"))

	_, err := c.Get(context.Background(), "q")
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryResponseCache(t *testing.T) {
	c := NewMemoryResponseCache(10)
	ctx := context.Background()
	now := time.Now()
	c.lru.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, "Track order?", "Use the tracking link.", "u", time.Hour))

	got, err := c.Get(ctx, "track ORDER? ")
	require.NoError(t, err)
	assert.Equal(t, "Use the tracking link.", got.Response)
	assert.False(t, c.Available())

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, int64(1), stats.CachedAnswers)

	now = now.Add(2 * time.Hour)
	_, err = c.Get(ctx, "Track order?")
	assert.True(t, IsCacheMiss(err))
}
