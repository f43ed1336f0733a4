// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 SupportRAG 服务端程序入口。

# 概述

cmd/supportrag 是客服问答服务的可执行入口，提供 HTTP / WebSocket 服务、
FAQ 导入、健康检查和版本查询等子命令。配置按 默认值 → .env → YAML →
SUPPORTRAG_ 环境变量 的顺序加载，日志使用 zap。

# 核心类型

  - Server：构建一次全部组件并注入 handlers，管理 API 与 Metrics 双端口
  - components：Redis、MongoDB、Gemini、JWT 等外部依赖，缺失时使用降级变体
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、seed（批量嵌入并导入 FAQ）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、Metrics、
    OTelTracing、CORS、RateLimiter（基于 IP）、JWTAuth
  - JWT 未配置时所有调用方以 anonymous 身份访问
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号 → 关闭 HTTP 与 Metrics → 断开 MongoDB / Redis → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
