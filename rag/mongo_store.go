package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/avast/retry-go/v4"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/BaSui01/supportrag/types"
)

// MongoConfig MongoDB Atlas 连接与索引配置
type MongoConfig struct {
	URI             string
	Database        string
	Collection      string
	VectorIndex     string
	TextIndex       string
	MaxPoolSize     uint64
	ConnectTimeout  time.Duration
	ConnectAttempts uint
}

// DefaultMongoConfig 返回默认配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		Database:        "ecommerce_support",
		Collection:      "faq_knowledge_base",
		VectorIndex:     "vector_search_index",
		TextIndex:       "text_search_index",
		MaxPoolSize:     10,
		ConnectTimeout:  10 * time.Second,
		ConnectAttempts: 3,
	}
}

// MongoStore 基于 MongoDB Atlas 的知识库。
// 向量检索使用 $vectorSearch，失败时回退到 $text 全文检索。
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	config     MongoConfig
	logger     *zap.Logger
	now        func() time.Time
}

// faqRecord 集合中的文档形态
type faqRecord struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Question  string        `bson:"question"`
	Answer    string        `bson:"answer"`
	Category  string        `bson:"category"`
	Embedding []float64     `bson:"embedding,omitempty"`
	Tags      []string      `bson:"tags,omitempty"`
	Priority  int           `bson:"priority,omitempty"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
	Score     float64       `bson:"score,omitempty"`
}

func (r faqRecord) document() Document {
	return Document{
		ID:        r.ID.Hex(),
		Question:  r.Question,
		Answer:    r.Answer,
		Category:  r.Category,
		Embedding: r.Embedding,
		Tags:      r.Tags,
		Priority:  r.Priority,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func recordOf(doc Document) faqRecord {
	rec := faqRecord{
		Question:  doc.Question,
		Answer:    doc.Answer,
		Category:  doc.Category,
		Embedding: doc.Embedding,
		Tags:      doc.Tags,
		Priority:  doc.Priority,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if oid, err := bson.ObjectIDFromHex(doc.ID); err == nil {
		rec.ID = oid
	} else {
		rec.ID = bson.NewObjectID()
	}
	return rec
}

// NewMongoStore 连接 MongoDB 并确保全文索引存在。
// Ping 按 ConnectAttempts 重试，全部失败时返回错误。
func NewMongoStore(ctx context.Context, config MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.URI == "" {
		return nil, types.NewProviderUnavailable("mongodb", "mongodb uri not configured")
	}
	defaults := DefaultMongoConfig()
	if config.Database == "" {
		config.Database = defaults.Database
	}
	if config.Collection == "" {
		config.Collection = defaults.Collection
	}
	if config.VectorIndex == "" {
		config.VectorIndex = defaults.VectorIndex
	}
	if config.TextIndex == "" {
		config.TextIndex = defaults.TextIndex
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaults.ConnectTimeout
	}
	if config.ConnectAttempts == 0 {
		config.ConnectAttempts = 1
	}

	clientOpts := options.Client().
		ApplyURI(config.URI).
		SetServerSelectionTimeout(config.ConnectTimeout).
		SetConnectTimeout(config.ConnectTimeout)
	if config.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(config.MaxPoolSize)
	}

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongodb client: %w", err)
	}

	err = retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
			defer cancel()
			return client.Ping(pingCtx, readpref.Primary())
		},
		retry.Context(ctx),
		retry.Attempts(config.ConnectAttempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("mongodb ping failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	s := &MongoStore{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
		config:     config,
		logger:     logger.With(zap.String("component", "mongo_store")),
		now:        time.Now,
	}

	if err := s.ensureTextIndex(ctx); err != nil {
		// 索引创建失败不影响向量检索
		s.logger.Warn("failed to ensure text index", zap.Error(err))
	}

	s.logger.Info("mongodb knowledge store connected",
		zap.String("database", config.Database),
		zap.String("collection", config.Collection))

	return s, nil
}

func (s *MongoStore) ensureTextIndex(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "question", Value: "text"},
			{Key: "answer", Value: "text"},
			{Key: "category", Value: "text"},
		},
		Options: options.Index().SetName(s.config.TextIndex),
	})
	return err
}

// ====== 聚合管道 ======

var projectStage = bson.D{{Key: "$project", Value: bson.D{
	{Key: "_id", Value: 1},
	{Key: "question", Value: 1},
	{Key: "answer", Value: 1},
	{Key: "category", Value: 1},
	{Key: "tags", Value: 1},
	{Key: "priority", Value: 1},
	{Key: "score", Value: 1},
	{Key: "created_at", Value: 1},
	{Key: "updated_at", Value: 1},
}}}

// vectorSearchPipeline 候选数为 limit 的 10 倍，分类过滤在阈值过滤之前
func vectorSearchPipeline(index string, vector []float64, opts SearchOptions) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: index},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: vector},
			{Key: "numCandidates", Value: opts.Limit * 10},
			{Key: "limit", Value: opts.Limit},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
	if opts.Category != "" {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.D{{Key: "category", Value: opts.Category}}}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$match", Value: bson.D{{Key: "score", Value: bson.D{{Key: "$gte", Value: opts.Threshold}}}}}},
		projectStage,
	)
	return pipeline
}

func textSearchPipeline(text string, opts SearchOptions) mongo.Pipeline {
	match := bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: text}}}}
	if opts.Category != "" {
		match = append(match, bson.E{Key: "category", Value: opts.Category})
	}
	textScore := bson.D{{Key: "$meta", Value: "textScore"}}

	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$addFields", Value: bson.D{{Key: "score", Value: textScore}}}},
		{{Key: "$sort", Value: bson.D{{Key: "score", Value: textScore}}}},
		{{Key: "$limit", Value: opts.Limit}},
		projectStage,
	}
}

// ====== 检索 ======

// VectorSearch 执行 $vectorSearch，任何失败都回退到 TextSearch
func (s *MongoStore) VectorSearch(ctx context.Context, vector []float64, opts SearchOptions) (*SearchResult, error) {
	opts = opts.withDefaults()

	records, err := s.aggregate(ctx, vectorSearchPipeline(s.config.VectorIndex, vector, opts))
	if err != nil {
		s.logger.Warn("vector search failed, falling back to text search", zap.Error(err))
		return s.TextSearch(ctx, opts.QueryText, opts)
	}

	results := make([]Retrieved, len(records))
	for i, r := range records {
		results[i] = Retrieved{Document: r.document(), Score: r.Score}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	s.logger.Debug("vector search completed", zap.Int("results", len(results)))
	return newVectorResult(results, opts), nil
}

// TextSearch 全文检索。失败时返回带错误描述的空结果
func (s *MongoStore) TextSearch(ctx context.Context, text string, opts SearchOptions) (*SearchResult, error) {
	opts = opts.withDefaults()

	if text == "" {
		return newKeywordResult(nil), nil
	}

	records, err := s.aggregate(ctx, textSearchPipeline(text, opts))
	if err != nil {
		s.logger.Warn("text search failed", zap.Error(err))
		sr := newKeywordResult(nil)
		sr.Error = err.Error()
		return sr, nil
	}

	results := make([]Retrieved, len(records))
	for i, r := range records {
		results[i] = Retrieved{Document: r.document(), Score: r.Score}
	}
	return newKeywordResult(results), nil
}

func (s *MongoStore) aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]faqRecord, error) {
	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var records []faqRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ====== 管理操作 ======

// Insert 插入单条 FAQ
func (s *MongoStore) Insert(ctx context.Context, doc Document) (Document, error) {
	doc = prepareInsert(doc, s.now())
	rec := recordOf(doc)

	if _, err := s.collection.InsertOne(ctx, rec); err != nil {
		return Document{}, fmt.Errorf("insert faq: %w", err)
	}
	doc.ID = rec.ID.Hex()
	s.logger.Debug("faq inserted", zap.String("id", doc.ID))
	return doc, nil
}

// InsertMany 批量插入
func (s *MongoStore) InsertMany(ctx context.Context, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	now := s.now()
	records := make([]faqRecord, len(docs))
	for i, d := range docs {
		records[i] = recordOf(prepareInsert(d, now))
	}

	res, err := s.collection.InsertMany(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("insert faqs: %w", err)
	}
	s.logger.Info("faqs inserted", zap.Int("count", len(res.InsertedIDs)))
	return len(res.InsertedIDs), nil
}

// Get 按 ID 获取 FAQ
func (s *MongoStore) Get(ctx context.Context, id string) (*Document, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var rec faqRecord
	err = s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get faq: %w", err)
	}
	doc := rec.document()
	return &doc, nil
}

// Update 以 $set 更新非空字段并刷新 updated_at
func (s *MongoStore) Update(ctx context.Context, id string, update DocumentUpdate) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	res, err := s.collection.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: updateFields(update, s.now())}},
	)
	if err != nil {
		return fmt.Errorf("update faq: %w", err)
	}
	if res.MatchedCount == 0 {
		return notFound(id)
	}
	return nil
}

func updateFields(u DocumentUpdate, now time.Time) bson.D {
	set := bson.D{}
	if u.Question != nil {
		set = append(set, bson.E{Key: "question", Value: *u.Question})
	}
	if u.Answer != nil {
		set = append(set, bson.E{Key: "answer", Value: *u.Answer})
	}
	if u.Category != nil {
		set = append(set, bson.E{Key: "category", Value: *u.Category})
	}
	if u.Embedding != nil {
		set = append(set, bson.E{Key: "embedding", Value: u.Embedding})
	}
	if u.Tags != nil {
		set = append(set, bson.E{Key: "tags", Value: u.Tags})
	}
	if u.Priority != nil {
		set = append(set, bson.E{Key: "priority", Value: *u.Priority})
	}
	return append(set, bson.E{Key: "updated_at", Value: now})
}

// Delete 删除 FAQ
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	res, err := s.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("delete faq: %w", err)
	}
	if res.DeletedCount == 0 {
		return notFound(id)
	}
	return nil
}

func parseID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, types.NewError(types.ErrInvalidRequest, "invalid faq id: "+id).WithHTTPStatus(400)
	}
	return oid, nil
}

// Categories 返回去重后的非空分类
func (s *MongoStore) Categories(ctx context.Context) ([]string, error) {
	var values []any
	if err := s.collection.Distinct(ctx, "category", bson.D{}).Decode(&values); err != nil {
		return nil, fmt.Errorf("distinct categories: %w", err)
	}
	return nonEmptyStrings(values), nil
}

func nonEmptyStrings(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Stats 汇总文档数、分类、索引与样例文档
func (s *MongoStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{
		Backend:    "mongodb",
		Connected:  true,
		Database:   s.config.Database,
		Collection: s.config.Collection,
	}

	total, err := s.collection.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("count faqs: %w", err)
	}
	stats.TotalDocuments = total

	categories, err := s.Categories(ctx)
	if err != nil {
		return nil, err
	}
	stats.Categories = categories
	stats.CategoryCount = len(categories)

	indexes, err := s.indexNames(ctx)
	if err != nil {
		s.logger.Debug("list indexes failed", zap.Error(err))
	}
	stats.Indexes = indexes
	for _, name := range indexes {
		switch name {
		case s.config.TextIndex:
			stats.HasTextIndex = true
		case s.config.VectorIndex:
			stats.HasVectorIndex = true
		}
	}

	var sample faqRecord
	err = s.collection.FindOne(ctx, bson.D{}).Decode(&sample)
	if err == nil {
		stats.Sample = sampleOf(sample.document())
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		s.logger.Debug("sample document lookup failed", zap.Error(err))
	}

	return stats, nil
}

// indexNames 普通索引与 Atlas Search 索引的名称。
// 非 Atlas 部署不支持 $listSearchIndexes，此时只返回普通索引。
func (s *MongoStore) indexNames(ctx context.Context) ([]string, error) {
	var names []string

	cursor, err := s.collection.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	var specs []bson.M
	if err := cursor.All(ctx, &specs); err != nil {
		return nil, err
	}
	for _, spec := range specs {
		if name, ok := spec["name"].(string); ok {
			names = append(names, name)
		}
	}

	searchCursor, err := s.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$listSearchIndexes", Value: bson.D{}}},
	})
	if err != nil {
		return names, nil
	}
	var searchSpecs []bson.M
	if err := searchCursor.All(ctx, &searchSpecs); err != nil {
		return names, nil
	}
	for _, spec := range searchSpecs {
		if name, ok := spec["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *MongoStore) Available() bool { return true }

// Ping 健康检查
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close 断开连接
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// OpenKnowledgeStore 连接 MongoDB，未配置或连接失败时返回 UnavailableStore
func OpenKnowledgeStore(ctx context.Context, config MongoConfig, logger *zap.Logger) KnowledgeStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := NewMongoStore(ctx, config, logger)
	if err != nil {
		logger.Warn("knowledge store unavailable, using fallback responses", zap.Error(err))
		return UnavailableStore{Reason: err.Error()}
	}
	return store
}
