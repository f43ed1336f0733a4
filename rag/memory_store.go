package rag

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/BaSui01/supportrag/types"
)

// ====== 内存知识库（用于测试、本地开发和 Mongo 不可用时）======

// errNoVectorIndex 模拟未建向量索引的部署
var errNoVectorIndex = errors.New("vector index not configured")

// MemoryStore 进程内知识库。向量检索基于 TopK，关键词检索按词项重叠打分。
type MemoryStore struct {
	documents   []Document
	vectorIndex bool
	mu          sync.RWMutex
	logger      *zap.Logger
	now         func() time.Time
}

// MemoryStoreOption 配置 MemoryStore
type MemoryStoreOption func(*MemoryStore)

// WithoutVectorIndex 禁用向量检索，所有 VectorSearch 都走关键词回退
func WithoutVectorIndex() MemoryStoreOption {
	return func(s *MemoryStore) { s.vectorIndex = false }
}

// NewMemoryStore 创建内存知识库
func NewMemoryStore(logger *zap.Logger, opts ...MemoryStoreOption) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MemoryStore{
		documents:   make([]Document, 0),
		vectorIndex: true,
		logger:      logger.With(zap.String("component", "memory_store")),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VectorSearch 向量检索，失败时回退到关键词检索
func (s *MemoryStore) VectorSearch(ctx context.Context, vector []float64, opts SearchOptions) (*SearchResult, error) {
	opts = opts.withDefaults()

	results, err := s.vectorSearch(vector, opts)
	if err != nil {
		s.logger.Warn("vector search failed, falling back to keyword search", zap.Error(err))
		return s.TextSearch(ctx, opts.QueryText, opts)
	}

	return newVectorResult(results, opts), nil
}

func (s *MemoryStore) vectorSearch(vector []float64, opts SearchOptions) ([]Retrieved, error) {
	if !s.vectorIndex {
		return nil, errNoVectorIndex
	}

	candidates := s.filtered(opts.Category, func(d Document) bool { return len(d.Embedding) > 0 })

	scored, err := TopK(vector, candidates, func(d Document) []float64 { return d.Embedding }, opts.Limit, opts.Threshold)
	if err != nil {
		var merr *multierror.Error
		// 全部候选都无法打分时视为检索失败，部分失败只记录
		if errors.As(err, &merr) && len(merr.Errors) == len(candidates) {
			return nil, err
		}
		s.logger.Debug("skipped unscorable documents", zap.Error(err))
	}

	results := make([]Retrieved, len(scored))
	for i, sc := range scored {
		results[i] = Retrieved{Document: sc.Item, Score: sc.Score}
	}
	return results, nil
}

// TextSearch 关键词检索：问题中的命中词计 1 分，答案与分类中的命中词各计 0.5 分
func (s *MemoryStore) TextSearch(ctx context.Context, text string, opts SearchOptions) (*SearchResult, error) {
	opts = opts.withDefaults()

	terms := tokenize(text)
	if len(terms) == 0 {
		return newKeywordResult(nil), nil
	}

	candidates := s.filtered(opts.Category, nil)
	results := make([]Retrieved, 0, len(candidates))
	for _, doc := range candidates {
		if score := keywordScore(terms, doc); score > 0 {
			results = append(results, Retrieved{Document: doc, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	return newKeywordResult(results), nil
}

// filtered 返回满足分类与条件的文档副本
func (s *MemoryStore) filtered(category string, keep func(Document) bool) []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Document, 0, len(s.documents))
	for _, d := range s.documents {
		if category != "" && d.Category != category {
			continue
		}
		if keep != nil && !keep(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		terms[f] = struct{}{}
	}
	return terms
}

func keywordScore(terms map[string]struct{}, doc Document) float64 {
	question := tokenize(doc.Question)
	answer := tokenize(doc.Answer)
	category := tokenize(doc.Category)

	var score float64
	for t := range terms {
		if _, ok := question[t]; ok {
			score += 1
		}
		if _, ok := answer[t]; ok {
			score += 0.5
		}
		if _, ok := category[t]; ok {
			score += 0.5
		}
	}
	return score
}

// Insert 添加文档，未指定 ID 时生成 UUID
func (s *MemoryStore) Insert(ctx context.Context, doc Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc = s.insertLocked(doc)
	s.logger.Debug("document inserted", zap.String("id", doc.ID))
	return doc, nil
}

// InsertMany 批量添加文档
func (s *MemoryStore) InsertMany(ctx context.Context, docs []Document) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		s.insertLocked(doc)
	}

	s.logger.Info("documents added to knowledge store",
		zap.Int("count", len(docs)),
		zap.Int("total", len(s.documents)))

	return len(docs), nil
}

func (s *MemoryStore) insertLocked(doc Document) Document {
	doc = prepareInsert(doc, s.now())
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	s.documents = append(s.documents, doc)
	return doc
}

// Get 按 ID 获取文档
func (s *MemoryStore) Get(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.documents {
		if d.ID == id {
			doc := d
			return &doc, nil
		}
	}
	return nil, notFound(id)
}

// Update 部分更新文档
func (s *MemoryStore) Update(ctx context.Context, id string, update DocumentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.documents {
		if s.documents[i].ID == id {
			applyUpdate(&s.documents[i], update, s.now())
			s.logger.Debug("document updated", zap.String("id", id))
			return nil
		}
	}
	return notFound(id)
}

// Delete 删除文档
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, d := range s.documents {
		if d.ID == id {
			s.documents = append(s.documents[:i], s.documents[i+1:]...)
			s.logger.Debug("document deleted", zap.String("id", id))
			return nil
		}
	}
	return notFound(id)
}

// Categories 返回去重排序后的非空分类
func (s *MemoryStore) Categories(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, d := range s.documents {
		if d.Category == "" {
			continue
		}
		if _, ok := seen[d.Category]; ok {
			continue
		}
		seen[d.Category] = struct{}{}
		out = append(out, d.Category)
	}
	sort.Strings(out)
	return out, nil
}

// Stats 知识库统计
func (s *MemoryStore) Stats(ctx context.Context) (*StoreStats, error) {
	categories, _ := s.Categories(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &StoreStats{
		Backend:        "memory",
		Connected:      true,
		TotalDocuments: int64(len(s.documents)),
		Categories:     categories,
		CategoryCount:  len(categories),
		HasVectorIndex: s.vectorIndex,
		HasTextIndex:   true,
	}
	if len(s.documents) > 0 {
		stats.Sample = sampleOf(s.documents[0])
	}
	return stats, nil
}

func (s *MemoryStore) Available() bool             { return true }
func (s *MemoryStore) Ping(context.Context) error  { return nil }
func (s *MemoryStore) Close(context.Context) error { return nil }

func applyUpdate(doc *Document, u DocumentUpdate, now time.Time) {
	if u.Question != nil {
		doc.Question = *u.Question
	}
	if u.Answer != nil {
		doc.Answer = *u.Answer
	}
	if u.Category != nil {
		doc.Category = *u.Category
	}
	if u.Embedding != nil {
		doc.Embedding = u.Embedding
	}
	if u.Tags != nil {
		doc.Tags = u.Tags
	}
	if u.Priority != nil {
		doc.Priority = *u.Priority
	}
	doc.UpdatedAt = now
}

func notFound(id string) error {
	return types.NewError(types.ErrNotFound, "faq "+id+" not found").WithHTTPStatus(404)
}
