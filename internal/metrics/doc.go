// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、RAG 管线、
外部依赖调用、缓存与 WebSocket 五个维度。

# 概述

Collector 使用 promauto 自动注册指标，所有指标按 namespace 隔离。
Collector 实现 rag.Observer，直接注入 rag.Orchestrator。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - RAG 指标：按置信度统计查询数，端到端与分阶段耗时，按类型统计回退次数。
  - 依赖调用：按 provider/status 计数，status 取 success/timeout/unavailable/rate_limited/error。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - WebSocket 指标：活跃连接 Gauge 与收发事件计数。
*/
package metrics
