// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供全局共享的结构化错误定义。

# 概述

types 是最底层的公共包，不依赖任何内部包。rag、llm、api 与 cmd 共用同一套
错误码，HTTP 层据此映射状态码与响应体。

# 核心类型

  - Error / ErrorCode: 结构化错误，携带 HTTP 状态码、Retryable 与 Provider 标记
  - NewProviderError: 上游模型 API 返回非 2xx 时的错误
  - NewProviderUnavailable: 提供者未配置或未连接时的错误

# 错误工具

  - AsError / GetErrorCode / IsErrorCode: 沿 Unwrap 链提取结构化错误
  - IsRetryable: 读取 Retryable 标记，重试策略据此决定是否重试
*/
package types
