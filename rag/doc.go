// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package rag 实现客服问答的检索增强生成管线：把用户问题转换为带置信度、
以 FAQ 知识库为依据的回答。嵌入、检索、缓存与生成任一环节降级时逐层回退，
调用方总能拿到一个可用的回答。

# 核心接口/类型

  - KnowledgeStore：FAQ 知识库接口（VectorSearch / TextSearch / CRUD / Stats）
  - MongoStore：MongoDB Atlas 实现，$vectorSearch 失败时回退到 $text 全文检索
  - MemoryStore：进程内实现，向量检索基于 TopK，关键词检索按词项重叠打分
  - UnavailableStore：未配置或连接失败时的变体
  - Orchestrator：管线本体，Process 总是返回 Result
  - Observer：指标钩子，由 internal/metrics 实现

# 主要能力

  - 相似度：Cosine 与泛型 TopK，维度不一致与零向量显式报错
  - 置信度：Classify 按最高分档给出 high / medium / low，关键词回退结果固定为 medium
  - 静态回答：无生成模型时 StaticResponse 直接基于排名第一的 FAQ 作答
  - 缓存策略：只有 high 置信度的回答写入 ResponseCache
  - 兜底：管线内部出错或 panic 时先尝试无上下文的模型回答，再退到固定致歉
  - 统计与自检：Stats 并发收集各依赖状态，TestPipeline 运行三条固定问题

# 处理流程

	CACHE_CHECK → RETRIEVAL → GENERATION → CONFIDENCE_CLASSIFY → CACHE_WRITE → DONE
	                 │             │
	                 │             └─ 生成失败 → StaticResponse
	                 └─ 向量检索失败 → 关键词检索（单跳，不重试）

每次外部调用都在 Options.ProviderTimeout 派生的超时内执行，
WithStatus 回调按 checking_cache、loading_context、searching_knowledge、
generating_response 的顺序接收进度。
*/
package rag
