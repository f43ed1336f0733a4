package llm

import (
	"fmt"
	"strings"
)

// ContextItem 是注入提示词的一条检索上下文
type ContextItem struct {
	Question string
	Answer   string
	Category string
	Score    float64
}

// FallbackSystemPrompt 用于无上下文的兜底生成
const FallbackSystemPrompt = "You are a helpful ecommerce customer support assistant. Provide a brief, helpful response and suggest contacting support for specific issues."

const ragPreamble = `You are a helpful ecommerce customer support assistant. Your goal is to provide accurate, helpful, and friendly responses to customer inquiries.

INSTRUCTIONS:
1. Use the provided FAQ context to answer the customer's question accurately
2. If the context contains highly relevant information (>85% relevance), use it directly
3. If the context is moderately relevant (75-85%), use it as guidance but adapt your response
4. If no relevant context is found, politely explain that you need more information or suggest contacting support
5. Always be polite, professional, and customer-focused
6. Keep responses concise but complete
7. If asked about specific policies, prices, or technical details not in the context, direct them to contact support

`

// BuildRAGPrompt 按顺序拼接：指令、编号上下文块、最近对话、用户问题。
// 上下文块和对话块为空时省略。maxContextLen > 0 时从尾部丢弃上下文条目，
// 直到上下文块不超过该字符数；第一条总是保留。
func BuildRAGPrompt(query string, contexts []ContextItem, history []Turn, maxContextLen int) string {
	var b strings.Builder
	b.WriteString(ragPreamble)

	if len(contexts) > 0 {
		var ctxBlock strings.Builder
		ctxBlock.WriteString("RELEVANT FAQ CONTEXT:\n")
		for i, c := range contexts {
			item := fmt.Sprintf("%d. Q: %s\n   A: %s\n   Category: %s\n   Relevance: %.1f%%\n\n",
				i+1, c.Question, c.Answer, c.Category, c.Score*100)
			if i > 0 && maxContextLen > 0 && ctxBlock.Len()+len(item) > maxContextLen {
				break
			}
			ctxBlock.WriteString(item)
		}
		b.WriteString(ctxBlock.String())
	}

	if len(history) > 0 {
		b.WriteString("RECENT CONVERSATION:\n")
		for _, t := range history {
			speaker := "Assistant"
			if t.Role == RoleUser {
				speaker = "Customer"
			}
			b.WriteString(speaker)
			b.WriteString(": ")
			b.WriteString(t.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("CUSTOMER QUESTION: ")
	b.WriteString(query)
	b.WriteString("\n\nRESPONSE:")
	return b.String()
}

// BuildSimplePrompt 构建不含检索上下文的提示词
func BuildSimplePrompt(system, query string) string {
	return system + "\n\nCustomer: " + query + "\n\nAssistant:"
}

// LastTurns 返回最近 n 轮对话，n <= 0 时返回 nil
func LastTurns(history []Turn, n int) []Turn {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}
