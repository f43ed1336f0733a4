package cache

import (
	"sync"
	"time"
)

// ============================================================
// LRU 本地缓存（双向链表，O(1) 操作，条目带 TTL）
// ============================================================

type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*lruNode[V]
	head     *lruNode[V] // 最近使用
	tail     *lruNode[V] // 最久未使用
	now      func() time.Time
}

type lruNode[V any] struct {
	key       string
	value     V
	expiresAt time.Time // 零值表示不过期
	prev      *lruNode[V]
	next      *lruNode[V]
}

// NewLRU 创建容量为 capacity 的 LRU，capacity <= 0 时按 1000 处理
func NewLRU[V any](capacity int) *LRU[V] {
	if capacity <= 0 {
		capacity = 1000
	}
	return &LRU[V]{
		capacity: capacity,
		items:    make(map[string]*lruNode[V]),
		now:      time.Now,
	}
}

func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	node, ok := c.items[key]
	if !ok {
		return zero, false
	}

	if !node.expiresAt.IsZero() && !c.now().Before(node.expiresAt) {
		c.removeNode(node)
		delete(c.items, key)
		return zero, false
	}

	c.moveToHead(node)
	return node.value, true
}

// Set 写入条目，ttl <= 0 表示不过期
func (c *LRU[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	if node, ok := c.items[key]; ok {
		node.value = value
		node.expiresAt = expiresAt
		c.moveToHead(node)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictTail()
	}

	node := &lruNode[V]{key: key, value: value, expiresAt: expiresAt}
	c.items[key] = node
	c.addToHead(node)
}

func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		c.removeNode(node)
		delete(c.items, key)
	}
}

// Len 返回当前条目数（含尚未清理的过期条目）
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRU[V]) addToHead(node *lruNode[V]) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *LRU[V]) removeNode(node *lruNode[V]) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
}

func (c *LRU[V]) moveToHead(node *lruNode[V]) {
	if node == c.head {
		return
	}
	c.removeNode(node)
	c.addToHead(node)
}

func (c *LRU[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.items, c.tail.key)
	c.removeNode(c.tail)
}
