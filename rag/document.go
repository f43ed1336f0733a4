package rag

import (
	"context"
	"time"
)

// DefaultCategory 入库时未指定分类使用的默认值
const DefaultCategory = "General"

// 检索方式
const (
	MethodVector          = "vector"
	MethodKeywordFallback = "keyword-fallback"
)

// Document FAQ 知识条目
type Document struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Category  string    `json:"category"`
	Embedding []float64 `json:"embedding,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Priority  int       `json:"priority,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentUpdate 部分更新，nil 字段保持不变
type DocumentUpdate struct {
	Question  *string   `json:"question,omitempty"`
	Answer    *string   `json:"answer,omitempty"`
	Category  *string   `json:"category,omitempty"`
	Embedding []float64 `json:"embedding,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Priority  *int      `json:"priority,omitempty"`
}

// Retrieved 一条检索结果
type Retrieved struct {
	Document
	Score  float64 `json:"score"`
	Method string  `json:"method"`
	// Tier 由存储层给出的分档；关键词回退结果固定为 medium
	Tier ConfidenceLevel `json:"tier,omitempty"`
}

// SearchOptions 检索参数
type SearchOptions struct {
	Limit         int
	Threshold     float64
	HighThreshold float64
	Category      string
	// QueryText 原始问题文本，向量检索失败时用于关键词回退
	QueryText string
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.Limit <= 0 {
		o.Limit = 3
	}
	if o.Threshold <= 0 {
		o.Threshold = 0.75
	}
	if o.HighThreshold <= 0 {
		o.HighThreshold = 0.85
	}
	return o
}

// Categorized 按置信度分档的检索结果
type Categorized struct {
	High   []Retrieved `json:"high"`
	Medium []Retrieved `json:"medium"`
	Low    []Retrieved `json:"low"`
}

// SearchResult 一次检索的完整结果
type SearchResult struct {
	Results             []Retrieved `json:"results"`
	Categorized         Categorized `json:"categorized"`
	TotalFound          int         `json:"total_found"`
	Fallback            bool        `json:"fallback"`
	HasHighConfidence   bool        `json:"has_high_confidence"`
	HasMediumConfidence bool        `json:"has_medium_confidence"`
	// Error 回退检索也失败时的错误描述
	Error string `json:"error,omitempty"`
}

// newVectorResult 按阈值对向量检索结果分档
func newVectorResult(results []Retrieved, opts SearchOptions) *SearchResult {
	sr := &SearchResult{Results: results, TotalFound: len(results)}
	for i := range results {
		r := &results[i]
		r.Method = MethodVector
		switch {
		case r.Score >= opts.HighThreshold:
			r.Tier = ConfidenceHigh
			sr.Categorized.High = append(sr.Categorized.High, *r)
		case r.Score >= opts.Threshold:
			r.Tier = ConfidenceMedium
			sr.Categorized.Medium = append(sr.Categorized.Medium, *r)
		default:
			r.Tier = ConfidenceLow
			sr.Categorized.Low = append(sr.Categorized.Low, *r)
		}
	}
	sr.HasHighConfidence = len(sr.Categorized.High) > 0
	sr.HasMediumConfidence = len(sr.Categorized.Medium) > 0
	return sr
}

// newKeywordResult 关键词回退结果一律归为 medium
func newKeywordResult(results []Retrieved) *SearchResult {
	sr := &SearchResult{Results: results, TotalFound: len(results), Fallback: true}
	for i := range results {
		results[i].Method = MethodKeywordFallback
		results[i].Tier = ConfidenceMedium
	}
	sr.Categorized.Medium = append(sr.Categorized.Medium, results...)
	sr.HasMediumConfidence = len(results) > 0
	return sr
}

// SampleInfo 统计信息中的样例文档摘要
type SampleInfo struct {
	HasEmbedding        bool   `json:"has_embedding"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`
	Question            string `json:"question"`
	Category            string `json:"category"`
}

// StoreStats 知识库统计
type StoreStats struct {
	Backend        string      `json:"backend"`
	Connected      bool        `json:"connected"`
	Database       string      `json:"database,omitempty"`
	Collection     string      `json:"collection,omitempty"`
	TotalDocuments int64       `json:"total_documents"`
	Categories     []string    `json:"categories"`
	CategoryCount  int         `json:"category_count"`
	HasVectorIndex bool        `json:"has_vector_index"`
	HasTextIndex   bool        `json:"has_text_index"`
	Sample         *SampleInfo `json:"sample_document,omitempty"`
	Indexes        []string    `json:"indexes,omitempty"`
}

func sampleOf(doc Document) *SampleInfo {
	q := doc.Question
	if r := []rune(q); len(r) > 50 {
		q = string(r[:50]) + "..."
	}
	return &SampleInfo{
		HasEmbedding:        len(doc.Embedding) > 0,
		EmbeddingDimensions: len(doc.Embedding),
		Question:            q,
		Category:            doc.Category,
	}
}

// KnowledgeStore FAQ 知识库
//
// VectorSearch 失败时自行回退到关键词检索，结果带 Fallback 标记；
// 返回的 error 仅表示存储本身不可用。
type KnowledgeStore interface {
	VectorSearch(ctx context.Context, vector []float64, opts SearchOptions) (*SearchResult, error)
	TextSearch(ctx context.Context, text string, opts SearchOptions) (*SearchResult, error)

	Insert(ctx context.Context, doc Document) (Document, error)
	InsertMany(ctx context.Context, docs []Document) (int, error)
	Get(ctx context.Context, id string) (*Document, error)
	Update(ctx context.Context, id string, update DocumentUpdate) error
	Delete(ctx context.Context, id string) error

	Categories(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (*StoreStats, error)

	// Available 仅用于统计与健康检查
	Available() bool
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// prepareInsert 填充默认分类与时间戳
func prepareInsert(doc Document, now time.Time) Document {
	if doc.Category == "" {
		doc.Category = DefaultCategory
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return doc
}
