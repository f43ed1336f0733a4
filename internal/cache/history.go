package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HistoryKeyPrefix 消息历史键前缀
const HistoryKeyPrefix = "msg_history:"

// 发送方类型
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Sender 消息发送方
type Sender struct {
	UserID string `json:"userId"`
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Model  string `json:"model,omitempty"`
}

// Message 一条聊天记录
type Message struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Room      string    `json:"room,omitempty"`
	Category  string    `json:"category,omitempty"`
}

// MessageHistory 按用户保存最近的聊天记录
type MessageHistory interface {
	Append(ctx context.Context, userID string, msg Message) error
	// Recent 返回最近 limit 条，按时间正序（最新的在最后）
	Recent(ctx context.Context, userID string, limit int) ([]Message, error)
	// Backend 返回 "redis" 或 "memory"
	Backend() string
}

// =============================================================================
// Redis 实现
// =============================================================================

// RedisHistory 使用 Redis 列表保存历史：LPUSH 新消息，LTRIM 保留 max 条，并刷新 TTL
type RedisHistory struct {
	manager *Manager
	max     int
	ttl     time.Duration
	logger  *zap.Logger
}

// NewRedisHistory 创建 Redis 历史存储
func NewRedisHistory(manager *Manager, maxMessages int, ttl time.Duration, logger *zap.Logger) *RedisHistory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxMessages <= 0 {
		maxMessages = 100
	}
	return &RedisHistory{
		manager: manager,
		max:     maxMessages,
		ttl:     ttl,
		logger:  logger.With(zap.String("component", "message_history")),
	}
}

func (h *RedisHistory) Append(ctx context.Context, userID string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return h.manager.PushCapped(ctx, HistoryKeyPrefix+userID, string(data), h.max, h.ttl)
}

func (h *RedisHistory) Recent(ctx context.Context, userID string, limit int) ([]Message, error) {
	raw, err := h.manager.Range(ctx, HistoryKeyPrefix+userID, limit)
	if err != nil {
		return nil, err
	}

	// 列表头部是最新消息，逆序后按时间正序返回
	out := make([]Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var m Message
		if err := json.Unmarshal([]byte(raw[i]), &m); err != nil {
			h.logger.Warn("skipping malformed history entry", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (h *RedisHistory) Backend() string { return "redis" }

// =============================================================================
// 进程内实现
// =============================================================================

// MemoryHistory 进程内历史存储，每个用户最多保留 max 条
type MemoryHistory struct {
	mu    sync.RWMutex
	max   int
	users map[string][]Message
}

// NewMemoryHistory 创建进程内历史存储
func NewMemoryHistory(maxMessages int) *MemoryHistory {
	if maxMessages <= 0 {
		maxMessages = 100
	}
	return &MemoryHistory{max: maxMessages, users: make(map[string][]Message)}
}

func (h *MemoryHistory) Append(_ context.Context, userID string, msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := append(h.users[userID], msg)
	if len(msgs) > h.max {
		msgs = append([]Message(nil), msgs[len(msgs)-h.max:]...)
	}
	h.users[userID] = msgs
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, userID string, limit int) ([]Message, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 {
		return nil, nil
	}
	msgs := h.users[userID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (h *MemoryHistory) Backend() string { return "memory" }
