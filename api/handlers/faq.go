package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/supportrag/llm/embedding"
	"github.com/BaSui01/supportrag/rag"
	"github.com/BaSui01/supportrag/types"
)

// =============================================================================
// 📚 FAQ 管理与管线统计
// =============================================================================

// PipelineAdmin 管线统计与自检
type PipelineAdmin interface {
	Stats(ctx context.Context) (*rag.PipelineStats, error)
	TestPipeline(ctx context.Context) *rag.PipelineTestReport
}

// FAQRequest 新建 FAQ
type FAQRequest struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Priority int      `json:"priority,omitempty"`
}

// FAQUpdateRequest 部分更新 FAQ，缺省字段保持不变
type FAQUpdateRequest struct {
	Question *string  `json:"question,omitempty"`
	Answer   *string  `json:"answer,omitempty"`
	Category *string  `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Priority *int     `json:"priority,omitempty"`
}

// FAQView 对外展示的 FAQ，不含向量本身
type FAQView struct {
	rag.Document
	EmbeddingDimensions int `json:"embedding_dimensions"`
}

func viewOf(doc rag.Document) FAQView {
	n := len(doc.Embedding)
	doc.Embedding = nil
	return FAQView{Document: doc, EmbeddingDimensions: n}
}

// FAQHandler FAQ 增删改查、检索与管线统计
type FAQHandler struct {
	store    rag.KnowledgeStore
	embedder embedding.Embedder
	admin    PipelineAdmin
	logger   *zap.Logger
}

// NewFAQHandler 创建 FAQ 处理器
func NewFAQHandler(store rag.KnowledgeStore, embedder embedding.Embedder, admin PipelineAdmin, logger *zap.Logger) *FAQHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FAQHandler{
		store:    store,
		embedder: embedder,
		admin:    admin,
		logger:   logger.With(zap.String("component", "faq")),
	}
}

// HandleCategories GET /api/v1/faqs/categories
func (h *FAQHandler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.store.Categories(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"categories": cats, "count": len(cats)})
}

// HandleSearch GET /api/v1/faqs?q=...&category=...&limit=5
// 嵌入失败时直接走关键词检索
func (h *FAQHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "query parameter q is required"), h.logger)
		return
	}
	opts := rag.SearchOptions{
		Limit:     QueryInt(r, "limit", 5, 50),
		Category:  r.URL.Query().Get("category"),
		QueryText: q,
	}

	var (
		res *rag.SearchResult
		err error
	)
	vector, embedErr := h.embedder.Embed(r.Context(), q, opts.Category)
	if embedErr != nil {
		h.logger.Debug("embedding failed, using keyword search", zap.Error(embedErr))
		res, err = h.store.TextSearch(r.Context(), q, opts)
	} else {
		res, err = h.store.VectorSearch(r.Context(), vector, opts)
	}
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	for _, list := range [][]rag.Retrieved{res.Results, res.Categorized.High, res.Categorized.Medium, res.Categorized.Low} {
		for i := range list {
			list[i].Embedding = nil
		}
	}
	WriteSuccess(w, res)
}

// HandleCreate POST /api/v1/faqs
func (h *FAQHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req FAQRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	req.Answer = strings.TrimSpace(req.Answer)
	if req.Question == "" || req.Answer == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "question and answer are required"), h.logger)
		return
	}
	if req.Category == "" {
		req.Category = rag.DefaultCategory
	}

	doc := rag.Document{
		Question:  req.Question,
		Answer:    req.Answer,
		Category:  req.Category,
		Tags:      req.Tags,
		Priority:  req.Priority,
		Embedding: h.embed(r.Context(), req.Question, req.Category),
	}
	saved, err := h.store.Insert(r.Context(), doc)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	h.logger.Info("faq created", zap.String("id", saved.ID), zap.String("category", saved.Category))
	WriteCreated(w, viewOf(saved))
}

// HandleGet GET /api/v1/faqs/{id}
func (h *FAQHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, viewOf(*doc))
}

// HandleUpdate PUT /api/v1/faqs/{id}。问题或分类变化时重新生成向量。
func (h *FAQHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req FAQUpdateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	id := r.PathValue("id")
	current, err := h.store.Get(r.Context(), id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	update := rag.DocumentUpdate{
		Question: req.Question,
		Answer:   req.Answer,
		Category: req.Category,
		Tags:     req.Tags,
		Priority: req.Priority,
	}
	if req.Question != nil || req.Category != nil {
		question, category := current.Question, current.Category
		if req.Question != nil {
			question = *req.Question
		}
		if req.Category != nil {
			category = *req.Category
		}
		update.Embedding = h.embed(r.Context(), question, category)
	}

	if err := h.store.Update(r.Context(), id, update); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	updated, err := h.store.Get(r.Context(), id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, viewOf(*updated))
}

// HandleDelete DELETE /api/v1/faqs/{id}
func (h *FAQHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	h.logger.Info("faq deleted", zap.String("id", id))
	WriteSuccess(w, map[string]string{"id": id})
}

// HandleStats GET /api/v1/rag/stats
func (h *FAQHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, stats)
}

// HandleTest POST /api/v1/rag/test
func (h *FAQHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.admin.TestPipeline(r.Context()))
}

// embed 失败时返回 nil，文档仍可通过关键词检索命中
func (h *FAQHandler) embed(ctx context.Context, question, category string) []float64 {
	vec, err := h.embedder.Embed(ctx, question, category)
	if err != nil {
		h.logger.Warn("failed to embed faq, storing without vector", zap.Error(err))
		return nil
	}
	return vec
}
