/*
包 embedding 提供文本嵌入能力，用于知识库入库与查询向量化。

# 核心接口

  - Embedder：Embed、Model、Dimensions、Available
  - GeminiProvider：对接 Gemini embedContent，默认模型 text-embedding-004（768 维）
  - Unavailable：未配置凭证时的变体，每次调用返回 PROVIDER_UNAVAILABLE

# 分类增强

Embed 的 category 参数非空时，实际嵌入的文本为 "{category}: {text}"。
入库与检索需保持一致的增强策略。

# 批量嵌入

EmbedBatch 按批顺序处理，批内逐条调用并以 rate.Limiter 控制间隔，批间额外等待。
单条失败被跳过并汇总到 BatchResult.Errors；PROVIDER_UNAVAILABLE 或 ctx 取消会中止整个批次。
*/
package embedding
