package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildRAGPrompt_FullLayout(t *testing.T) {
	contexts := []ContextItem{
		{Question: "How long does shipping take?", Answer: "3-5 business days.", Category: "Shipping", Score: 0.912},
		{Question: "Do you ship abroad?", Answer: "Yes, to 40 countries.", Category: "Shipping", Score: 0.78},
	}
	history := []Turn{
		{Role: RoleUser, Content: "Hi"},
		{Role: RoleAssistant, Content: "Hello! How can I help?"},
	}

	prompt := BuildRAGPrompt("When will my order arrive?", contexts, history, 0)

	assert.True(t, strings.HasPrefix(prompt, "You are a helpful ecommerce customer support assistant."))
	assert.Contains(t, prompt, "2. If the context contains highly relevant information (>85% relevance), use it directly")
	assert.Contains(t, prompt, "RELEVANT FAQ CONTEXT:\n1. Q: How long does shipping take?\n   A: 3-5 business days.\n   Category: Shipping\n   Relevance: 91.2%\n\n")
	assert.Contains(t, prompt, "2. Q: Do you ship abroad?")
	assert.Contains(t, prompt, "RECENT CONVERSATION:\nCustomer: Hi\nAssistant: Hello! How can I help?\n\n")
	assert.True(t, strings.HasSuffix(prompt, "CUSTOMER QUESTION: When will my order arrive?\n\nRESPONSE:"))

	// 顺序：上下文 → 对话 → 问题
	ctxIdx := strings.Index(prompt, "RELEVANT FAQ CONTEXT:")
	histIdx := strings.Index(prompt, "RECENT CONVERSATION:")
	qIdx := strings.Index(prompt, "CUSTOMER QUESTION:")
	assert.Less(t, ctxIdx, histIdx)
	assert.Less(t, histIdx, qIdx)
}

func TestBuildRAGPrompt_OmitsEmptySections(t *testing.T) {
	prompt := BuildRAGPrompt("Hello?", nil, nil, 4000)

	assert.NotContains(t, prompt, "RELEVANT FAQ CONTEXT:")
	assert.NotContains(t, prompt, "RECENT CONVERSATION:")
	assert.Contains(t, prompt, "to contact support\n\nCUSTOMER QUESTION: Hello?")
}

func TestBuildRAGPrompt_TruncatesContext(t *testing.T) {
	long := strings.Repeat("x", 300)
	contexts := []ContextItem{
		{Question: "first", Answer: long, Category: "A", Score: 0.9},
		{Question: "second", Answer: long, Category: "A", Score: 0.88},
		{Question: "third", Answer: long, Category: "A", Score: 0.86},
	}

	prompt := BuildRAGPrompt("q", contexts, nil, 800)
	assert.Contains(t, prompt, "1. Q: first")
	assert.Contains(t, prompt, "2. Q: second")
	assert.NotContains(t, prompt, "3. Q: third")

	// 第一条即使超长也保留
	prompt = BuildRAGPrompt("q", contexts, nil, 10)
	assert.Contains(t, prompt, "1. Q: first")
	assert.NotContains(t, prompt, "2. Q: second")
}

func TestBuildSimplePrompt(t *testing.T) {
	assert.Equal(t, "sys\n\nCustomer: where is my parcel\n\nAssistant:",
		BuildSimplePrompt("sys", "where is my parcel"))
}

func TestLastTurns(t *testing.T) {
	history := []Turn{
		{Role: RoleUser, Content: "1"},
		{Role: RoleAssistant, Content: "2"},
		{Role: RoleUser, Content: "3"},
	}

	assert.Nil(t, LastTurns(history, 0))
	assert.Nil(t, LastTurns(nil, 5))
	assert.Equal(t, history, LastTurns(history, 5))
	assert.Equal(t, history[1:], LastTurns(history, 2))
}
