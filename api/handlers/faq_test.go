package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/supportrag/rag"
)

// =============================================================================
// 🧪 FAQHandler 测试
// =============================================================================

func newFAQMux(t *testing.T, embedder keywordEmbedder) (*http.ServeMux, *rag.MemoryStore) {
	t.Helper()
	o, store := newTestOrchestrator(t, &echoGenerator{})
	h := NewFAQHandler(store, embedder, o, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/faqs", h.HandleSearch)
	mux.HandleFunc("POST /api/v1/faqs", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/faqs/categories", h.HandleCategories)
	mux.HandleFunc("GET /api/v1/faqs/{id}", h.HandleGet)
	mux.HandleFunc("PUT /api/v1/faqs/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE /api/v1/faqs/{id}", h.HandleDelete)
	mux.HandleFunc("GET /api/v1/rag/stats", h.HandleStats)
	mux.HandleFunc("POST /api/v1/rag/test", h.HandleTest)
	return mux, store
}

func doJSON(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Success bool `json:"success"`
		Data    T    `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	require.True(t, env.Success)
	return env.Data
}

func TestFAQHandler_CRUD(t *testing.T) {
	mux, _ := newFAQMux(t, keywordEmbedder{})

	w := doJSON(t, mux, http.MethodPost, "/api/v1/faqs", `{"question":"Do you offer gift wrap?","answer":"Yes, for $5."}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeData[FAQView](t, w)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, rag.DefaultCategory, created.Category)
	assert.Equal(t, 3, created.EmbeddingDimensions)
	assert.Nil(t, created.Embedding)

	w = doJSON(t, mux, http.MethodGet, "/api/v1/faqs/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Yes, for $5.", decodeData[FAQView](t, w).Answer)

	w = doJSON(t, mux, http.MethodPut, "/api/v1/faqs/"+created.ID, `{"answer":"Yes, free of charge.","priority":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decodeData[FAQView](t, w)
	assert.Equal(t, "Do you offer gift wrap?", updated.Question)
	assert.Equal(t, "Yes, free of charge.", updated.Answer)
	assert.Equal(t, 3, updated.Priority)

	w = doJSON(t, mux, http.MethodDelete, "/api/v1/faqs/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, mux, http.MethodGet, "/api/v1/faqs/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, mux, http.MethodDelete, "/api/v1/faqs/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFAQHandler_CreateValidation(t *testing.T) {
	mux, _ := newFAQMux(t, keywordEmbedder{})

	tests := []struct {
		name string
		body string
	}{
		{"missing answer", `{"question":"Q?"}`},
		{"blank question", `{"question":"  ","answer":"A"}`},
		{"unknown field", `{"question":"Q?","answer":"A","extra":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, mux, http.MethodPost, "/api/v1/faqs", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestFAQHandler_CreateWithoutEmbedding(t *testing.T) {
	mux, store := newFAQMux(t, keywordEmbedder{fail: true})

	w := doJSON(t, mux, http.MethodPost, "/api/v1/faqs", `{"question":"Can I pay by invoice?","answer":"Yes.","category":"Billing"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeData[FAQView](t, w)
	assert.Equal(t, 0, created.EmbeddingDimensions)

	doc, err := store.Get(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Empty(t, doc.Embedding)
	assert.Equal(t, "Billing", doc.Category)
}

func TestFAQHandler_UpdateReembedsOnQuestionChange(t *testing.T) {
	mux, store := newFAQMux(t, keywordEmbedder{})

	w := doJSON(t, mux, http.MethodPut, "/api/v1/faqs/return", `{"question":"What is your shipping policy?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	doc, err := store.Get(t.Context(), "return")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, doc.Embedding)

	// 只改答案不重新生成向量
	w = doJSON(t, mux, http.MethodPut, "/api/v1/faqs/ship", `{"answer":"Two days."}`)
	require.Equal(t, http.StatusOK, w.Code)
	doc, err = store.Get(t.Context(), "ship")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, doc.Embedding)

	w = doJSON(t, mux, http.MethodPut, "/api/v1/faqs/missing", `{"answer":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFAQHandler_Search(t *testing.T) {
	mux, _ := newFAQMux(t, keywordEmbedder{})

	w := doJSON(t, mux, http.MethodGet, "/api/v1/faqs?q=shipping+time&limit=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"embedding":`)

	res := decodeData[rag.SearchResult](t, w)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "ship", res.Results[0].ID)
	assert.Equal(t, rag.MethodVector, res.Results[0].Method)
	assert.False(t, res.Fallback)
	assert.True(t, res.HasHighConfidence)

	w = doJSON(t, mux, http.MethodGet, "/api/v1/faqs", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFAQHandler_SearchFallsBackToKeywords(t *testing.T) {
	mux, _ := newFAQMux(t, keywordEmbedder{fail: true})

	w := doJSON(t, mux, http.MethodGet, "/api/v1/faqs?q=return+policy", "")
	require.Equal(t, http.StatusOK, w.Code)

	res := decodeData[rag.SearchResult](t, w)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "return", res.Results[0].ID)
	assert.True(t, res.Fallback)
	assert.False(t, res.HasHighConfidence)
}

func TestFAQHandler_Categories(t *testing.T) {
	mux, _ := newFAQMux(t, keywordEmbedder{})

	w := doJSON(t, mux, http.MethodGet, "/api/v1/faqs/categories", "")
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData[struct {
		Categories []string `json:"categories"`
		Count      int      `json:"count"`
	}](t, w)
	assert.Equal(t, []string{"Returns", "Shipping"}, data.Categories)
	assert.Equal(t, 2, data.Count)
}

func TestFAQHandler_StatsAndSelfTest(t *testing.T) {
	mux, _ := newFAQMux(t, keywordEmbedder{})

	w := doJSON(t, mux, http.MethodGet, "/api/v1/rag/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeData[rag.PipelineStats](t, w)
	require.NotNil(t, stats.KnowledgeStore)
	assert.Equal(t, "memory", stats.KnowledgeStore.Backend)
	assert.Equal(t, int64(2), stats.KnowledgeStore.TotalDocuments)

	w = doJSON(t, mux, http.MethodPost, "/api/v1/rag/test", "")
	require.Equal(t, http.StatusOK, w.Code)
	report := decodeData[rag.PipelineTestReport](t, w)
	assert.Equal(t, len(rag.SelfTestQueries), report.TotalTests)
	assert.Equal(t, report.TotalTests, report.Successful)
	assert.Zero(t, report.Failed)
}
