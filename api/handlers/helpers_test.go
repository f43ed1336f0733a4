package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/supportrag/internal/auth"
	"github.com/BaSui01/supportrag/llm"
	"github.com/BaSui01/supportrag/rag"
	"github.com/BaSui01/supportrag/types"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

// keywordEmbedder 按关键词返回固定向量
type keywordEmbedder struct {
	fail bool
}

func (e keywordEmbedder) Embed(_ context.Context, text, _ string) ([]float64, error) {
	if e.fail {
		return nil, types.NewProviderUnavailable("gemini", "no api key")
	}
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "ship"):
		return []float64{1, 0, 0}, nil
	case strings.Contains(t, "return"):
		return []float64{0, 1, 0}, nil
	default:
		return []float64{0, 0, 1}, nil
	}
}

func (keywordEmbedder) Model() string     { return "fake-embedding" }
func (keywordEmbedder) Dimensions() int   { return 3 }
func (e keywordEmbedder) Available() bool { return !e.fail }

// echoGenerator 返回固定前缀的回答并记录 prompt
type echoGenerator struct {
	mu      sync.Mutex
	prompts []string
}

func (g *echoGenerator) Generate(_ context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, req.Prompt)
	return &llm.GenerateResponse{Text: "Generated answer", Model: "fake-model"}, nil
}

func (g *echoGenerator) Model() string   { return "fake-model" }
func (g *echoGenerator) Available() bool { return true }

func (g *echoGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

func seededStore(t *testing.T) *rag.MemoryStore {
	t.Helper()
	s := rag.NewMemoryStore(nil)
	_, err := s.InsertMany(context.Background(), []rag.Document{
		{ID: "ship", Question: "How long does shipping take?", Answer: "Shipping takes 3-5 business days.",
			Category: "Shipping", Embedding: []float64{1, 0, 0}},
		{ID: "return", Question: "What is your return policy?", Answer: "Returns are accepted within 30 days.",
			Category: "Returns", Embedding: []float64{0, 1, 0}},
	})
	require.NoError(t, err)
	return s
}

func newTestOrchestrator(t *testing.T, gen llm.Generator) (*rag.Orchestrator, *rag.MemoryStore) {
	t.Helper()
	store := seededStore(t)
	o := rag.NewOrchestrator(rag.DefaultOptions(), rag.Dependencies{
		Embedder:  keywordEmbedder{},
		Store:     store,
		Generator: gen,
	}, nil)
	return o, store
}

// stubPipeline 记录收到的查询并返回固定结果
type stubPipeline struct {
	mu      sync.Mutex
	queries []rag.Query
	result  rag.Result
}

func (p *stubPipeline) Process(_ context.Context, q rag.Query, _ ...rag.ProcessOption) *rag.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, q)
	res := p.result
	res.UserID = q.UserID
	return &res
}

func (p *stubPipeline) last() rag.Query {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries[len(p.queries)-1]
}

// stubVerifier 只接受 token "good"
type stubVerifier struct{}

func (stubVerifier) Verify(token string) (auth.Identity, error) {
	if token != "good" {
		return auth.Identity{}, types.NewError(types.ErrInvalidCredential, "invalid or expired token").WithHTTPStatus(http.StatusUnauthorized)
	}
	return auth.Identity{UserID: "user-1", Email: "user@example.com"}, nil
}

func withUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{UserID: userID, Email: userID + "@example.com"}))
}
