package rag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/supportrag/types"
)

// 接口实现检查
var (
	_ KnowledgeStore = (*MemoryStore)(nil)
	_ KnowledgeStore = (*MongoStore)(nil)
	_ KnowledgeStore = UnavailableStore{}
)

func seedStore(t *testing.T, opts ...MemoryStoreOption) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(zap.NewNop(), opts...)
	_, err := s.InsertMany(context.Background(), []Document{
		{ID: "ship", Question: "How long does shipping take?", Answer: "Shipping takes 3-5 business days.",
			Category: "Shipping", Embedding: []float64{1, 0, 0}},
		{ID: "return", Question: "What is your return policy?", Answer: "Returns are accepted within 30 days.",
			Category: "Returns", Embedding: []float64{0, 1, 0}},
		{ID: "track", Question: "How can I track my order?", Answer: "Use the tracking link in your shipping email.",
			Category: "Orders", Embedding: []float64{0.9, 0.1, 0}},
		{ID: "noembed", Question: "Do you ship internationally?", Answer: "Yes, to most countries."},
	})
	require.NoError(t, err)
	return s
}

func TestMemoryStore_VectorSearch(t *testing.T) {
	s := seedStore(t)

	res, err := s.VectorSearch(context.Background(), []float64{1, 0, 0}, SearchOptions{Limit: 3})
	require.NoError(t, err)

	require.Len(t, res.Results, 2)
	assert.Equal(t, "ship", res.Results[0].ID)
	assert.InDelta(t, 1.0, res.Results[0].Score, 1e-9)
	assert.Equal(t, "track", res.Results[1].ID)
	assert.Equal(t, MethodVector, res.Results[0].Method)

	assert.False(t, res.Fallback)
	assert.Equal(t, 2, res.TotalFound)
	assert.True(t, res.HasHighConfidence)
	assert.Len(t, res.Categorized.High, 2)
	assert.Empty(t, res.Categorized.Low)
}

func TestMemoryStore_VectorSearch_ThresholdAndLimit(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	res, err := s.VectorSearch(ctx, []float64{1, 0, 0}, SearchOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "ship", res.Results[0].ID)

	// 与所有文档都不相近
	res, err = s.VectorSearch(ctx, []float64{0, 0, 1}, SearchOptions{Limit: 3})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.False(t, res.Fallback)
}

func TestMemoryStore_VectorSearch_Category(t *testing.T) {
	s := seedStore(t)

	res, err := s.VectorSearch(context.Background(), []float64{1, 0, 0}, SearchOptions{Limit: 3, Category: "Orders"})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "track", res.Results[0].ID)
}

func TestMemoryStore_VectorSearch_FallsBackWithoutIndex(t *testing.T) {
	s := seedStore(t, WithoutVectorIndex())

	res, err := s.VectorSearch(context.Background(), []float64{1, 0, 0}, SearchOptions{
		Limit:     3,
		QueryText: "shipping time",
	})
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, MethodKeywordFallback, res.Results[0].Method)
	assert.Equal(t, ConfidenceMedium, res.Results[0].Tier)
	assert.Len(t, res.Categorized.Medium, len(res.Results))
	assert.False(t, res.HasHighConfidence)
	assert.True(t, res.HasMediumConfidence)
}

func TestMemoryStore_VectorSearch_FallsBackOnDimensionMismatch(t *testing.T) {
	s := seedStore(t)

	res, err := s.VectorSearch(context.Background(), []float64{1, 0}, SearchOptions{
		Limit:     3,
		QueryText: "return policy",
	})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "return", res.Results[0].ID)
}

func TestMemoryStore_TextSearch(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	res, err := s.TextSearch(ctx, "How do I track my order?", SearchOptions{Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "track", res.Results[0].ID)
	assert.True(t, res.Fallback)

	// 没有文档命中
	res, err = s.TextSearch(ctx, "warranty", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Results)

	// 没有可用词项
	res, err = s.TextSearch(ctx, "?!", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
}

func TestMemoryStore_CRUD(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return now }

	doc, err := s.Insert(ctx, Document{Question: "Q1", Answer: "A1"})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, DefaultCategory, doc.Category)
	assert.Equal(t, now, doc.CreatedAt)

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "A1", got.Answer)

	later := now.Add(time.Hour)
	s.now = func() time.Time { return later }
	answer := "A2"
	require.NoError(t, s.Update(ctx, doc.ID, DocumentUpdate{Answer: &answer, Tags: []string{"faq"}}))

	got, err = s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Q1", got.Question)
	assert.Equal(t, "A2", got.Answer)
	assert.Equal(t, []string{"faq"}, got.Tags)
	assert.Equal(t, later, got.UpdatedAt)
	assert.Equal(t, now, got.CreatedAt)

	require.NoError(t, s.Delete(ctx, doc.ID))
	_, err = s.Get(ctx, doc.ID)
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
	assert.True(t, types.IsErrorCode(s.Delete(ctx, doc.ID), types.ErrNotFound))
	assert.True(t, types.IsErrorCode(s.Update(ctx, doc.ID, DocumentUpdate{}), types.ErrNotFound))
}

func TestMemoryStore_CategoriesAndStats(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	cats, err := s.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"General", "Orders", "Returns", "Shipping"}, cats)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, int64(4), stats.TotalDocuments)
	assert.Equal(t, 4, stats.CategoryCount)
	assert.True(t, stats.HasVectorIndex)
	require.NotNil(t, stats.Sample)
	assert.True(t, stats.Sample.HasEmbedding)
	assert.Equal(t, 3, stats.Sample.EmbeddingDimensions)
}

func TestUnavailableStore(t *testing.T) {
	s := UnavailableStore{Reason: "mongodb uri not configured"}
	ctx := context.Background()

	res, err := s.VectorSearch(ctx, []float64{1}, SearchOptions{})
	assert.True(t, types.IsErrorCode(err, types.ErrProviderUnavailable))
	require.NotNil(t, res)
	assert.True(t, res.Fallback)
	assert.Empty(t, res.Results)

	_, err = s.Insert(ctx, Document{})
	assert.True(t, types.IsErrorCode(err, types.ErrProviderUnavailable))

	cats, err := s.Categories(ctx)
	require.NoError(t, err)
	assert.Empty(t, cats)
	assert.False(t, s.Available())
	assert.Error(t, s.Ping(ctx))
}

func TestSampleOf_TruncatesQuestion(t *testing.T) {
	long := "How long does shipping take for orders placed on a public holiday weekend?"
	got := sampleOf(Document{Question: long})
	assert.Equal(t, long[:50]+"...", got.Question)
	assert.False(t, got.HasEmbedding)
}
