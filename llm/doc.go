// Package llm 定义文本生成接口与提示词构建。
//
// Generator 是纯文本进出的生成能力，具体实现位于 providers 子包；
// 未配置凭证时使用 UnavailableGenerator。BuildRAGPrompt 将检索上下文与
// 最近对话拼接为完整提示词，BuildSimplePrompt 用于无上下文的兜底生成。
package llm
