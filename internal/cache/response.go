package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ResponseKeyPrefix 回答缓存键前缀
const ResponseKeyPrefix = "msg_response:"

// CachedResponse 缓存中的一条回答
type CachedResponse struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ResponseStats 回答缓存统计
type ResponseStats struct {
	Backend       string `json:"backend"`
	CachedAnswers int64  `json:"cached_answers"`
}

// ResponseCache 以规范化问题为键的回答缓存。
// 只负责存取，写入策略由调用方决定。
type ResponseCache interface {
	// Get 未命中时返回 ErrCacheMiss
	Get(ctx context.Context, query string) (*CachedResponse, error)
	Put(ctx context.Context, query, answer, userID string, ttl time.Duration) error
	Stats(ctx context.Context) (ResponseStats, error)
	// Available 为 false 表示使用的是进程内实现
	Available() bool
}

// NormalizeQuery 小写并去除首尾空白
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// ResponseKey 由规范化后的问题派生缓存键，大小写与首尾空白不同的问题得到同一个键
func ResponseKey(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return ResponseKeyPrefix + hex.EncodeToString(sum[:])
}

// =============================================================================
// Redis 实现
// =============================================================================

// RedisResponseCache 基于 Manager 的回答缓存
type RedisResponseCache struct {
	manager *Manager
	logger  *zap.Logger
}

// NewRedisResponseCache 创建 Redis 回答缓存
func NewRedisResponseCache(manager *Manager, logger *zap.Logger) *RedisResponseCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisResponseCache{
		manager: manager,
		logger:  logger.With(zap.String("component", "response_cache")),
	}
}

func (c *RedisResponseCache) Get(ctx context.Context, query string) (*CachedResponse, error) {
	raw, err := c.manager.Get(ctx, ResponseKey(query))
	if err != nil {
		return nil, err
	}

	var entry CachedResponse
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// 损坏的条目按未命中处理
		c.logger.Warn("discarding malformed cache entry", zap.Error(err))
		return nil, ErrCacheMiss
	}
	return &entry, nil
}

func (c *RedisResponseCache) Put(ctx context.Context, query, answer, userID string, ttl time.Duration) error {
	data, err := json.Marshal(CachedResponse{
		Query:     query,
		Response:  answer,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return c.manager.Set(ctx, ResponseKey(query), string(data), ttl)
}

func (c *RedisResponseCache) Stats(ctx context.Context) (ResponseStats, error) {
	n, err := c.manager.CountKeys(ctx, ResponseKeyPrefix+"*")
	if err != nil {
		return ResponseStats{Backend: "redis"}, err
	}
	return ResponseStats{Backend: "redis", CachedAnswers: n}, nil
}

func (c *RedisResponseCache) Available() bool { return true }

// =============================================================================
// 进程内实现
// =============================================================================

// MemoryResponseCache 基于 LRU 的进程内回答缓存，Redis 不可用时使用
type MemoryResponseCache struct {
	lru *LRU[CachedResponse]
}

// NewMemoryResponseCache 创建进程内回答缓存
func NewMemoryResponseCache(maxEntries int) *MemoryResponseCache {
	return &MemoryResponseCache{lru: NewLRU[CachedResponse](maxEntries)}
}

func (c *MemoryResponseCache) Get(_ context.Context, query string) (*CachedResponse, error) {
	entry, ok := c.lru.Get(ResponseKey(query))
	if !ok {
		return nil, ErrCacheMiss
	}
	return &entry, nil
}

func (c *MemoryResponseCache) Put(_ context.Context, query, answer, userID string, ttl time.Duration) error {
	c.lru.Set(ResponseKey(query), CachedResponse{
		Query:     query,
		Response:  answer,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}, ttl)
	return nil
}

func (c *MemoryResponseCache) Stats(context.Context) (ResponseStats, error) {
	return ResponseStats{Backend: "memory", CachedAnswers: int64(c.lru.Len())}, nil
}

func (c *MemoryResponseCache) Available() bool { return false }
