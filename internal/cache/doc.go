/*
包 cache 提供回答缓存与消息历史两类存储，均有 Redis 与进程内两种实现，
启动时根据 Redis 是否可用二选一。

# 核心类型

  - Manager：go-redis 客户端封装，启动时以 retry-go 重试 Ping，
    提供 Get/Set/Delete、带上限的列表写入（PushCapped）、SCAN 计数与健康检查。
  - ResponseCache：以 ResponseKey(query) 为键的回答缓存。键由小写、去首尾空白后的
    问题经 sha256 派生，前缀 msg_response:。实现为 RedisResponseCache 与 MemoryResponseCache。
  - MessageHistory：按用户保存最近消息，Redis 键 msg_history:{userId}，
    默认保留 100 条、1 小时过期。实现为 RedisHistory 与 MemoryHistory。
  - LRU：带 TTL 的泛型 LRU，进程内实现的底座。

未命中统一返回 ErrCacheMiss。缓存只负责存取，是否写入由调用方决定。
*/
package cache
