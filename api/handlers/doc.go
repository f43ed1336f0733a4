// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供客服问答服务的 HTTP 与 WebSocket 处理器。

# 概述

handlers 把 rag.Orchestrator 暴露为 REST 端点和 /ws/chat 实时通道，
并负责 FAQ 知识库的管理接口与健康检查。所有 Handler 均遵循标准
net/http 接口，身份由上层中间件通过 auth.WithIdentity 注入。

# 核心类型

  - ChatHandler：POST /api/v1/chat 与 GET /api/v1/chat/history
  - WSHandler：/ws/chat，升级前校验 JWT，事件协议见 Event* 常量
  - FAQHandler：FAQ 增删改查、检索、分类以及 /api/v1/rag/stats、/api/v1/rag/test
  - HealthHandler：/health、/healthz、/ready、/version
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter：捕获状态码与字节数，支持 Flush 与 Hijack

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码映射，5xx 不向客户端泄露内部错误
  - 对话历史：提问前读取最近若干轮，回答后异步写入 MessageHistory
  - 实时进度：WebSocket 会话把管线状态转发为 messageProcessing 事件，
    断开连接时取消进行中的管线调用
*/
package handlers
