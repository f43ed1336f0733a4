package rag

import (
	"fmt"
	"math"
)

// 静态回答使用的模型标识
const (
	ModelStaticDirect   = "static_direct"
	ModelStaticPartial  = "static_partial"
	ModelStaticFallback = "static_fallback"
)

// 回答类型
const (
	TypeRAG            = "rag"
	TypeCached         = "cached"
	TypeDirectMatch    = "direct_match"
	TypePartialMatch   = "partial_match"
	TypeFallback       = "fallback"
	TypeFallbackLLM    = "fallback_llm"
	TypeStaticFallback = "static_fallback"
)

const (
	noContextMessage = "I apologize, but I don't have specific information about your question. " +
		"Please contact our customer support team for personalized assistance."
	technicalDifficultiesMessage = "I apologize, but I'm experiencing technical difficulties. " +
		"Please contact our customer support team directly for assistance with your question."
	partialMatchTemplate = "Based on our FAQ, here's what I found: %s\n\n" +
		"If this doesn't fully answer your question, please contact our support team for more specific help."
)

// StaticAnswer 生成模型不可用时的回答
type StaticAnswer struct {
	Text       string
	Confidence Confidence
	Model      string
	Type       string
}

// StaticResponse 在没有生成模型时直接基于检索结果作答。
// 只看排名第一的条目：落在 high 档原样返回答案，否则加上保留措辞。
func StaticResponse(contexts []Retrieved, th Thresholds) StaticAnswer {
	if len(contexts) == 0 {
		return StaticAnswer{
			Text:       noContextMessage,
			Confidence: Confidence{Level: ConfidenceLow, Score: 0.2, Reason: "No relevant context found"},
			Model:      ModelStaticFallback,
			Type:       TypeFallback,
		}
	}

	best := contexts[0]
	if tierOf(best, th) == ConfidenceHigh {
		return StaticAnswer{
			Text:       best.Answer,
			Confidence: Confidence{Level: ConfidenceHigh, Score: best.Score, Reason: "Direct FAQ match"},
			Model:      ModelStaticDirect,
			Type:       TypeDirectMatch,
		}
	}

	// 关键词引擎的分数不在 [0, 1] 内
	return StaticAnswer{
		Text:       fmt.Sprintf(partialMatchTemplate, best.Answer),
		Confidence: Confidence{Level: ConfidenceMedium, Score: math.Min(best.Score, 1), Reason: "Partial FAQ match"},
		Model:      ModelStaticPartial,
		Type:       TypePartialMatch,
	}
}
