package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/supportrag/api/handlers"
	"github.com/BaSui01/supportrag/config"
	"github.com/BaSui01/supportrag/internal/auth"
	"github.com/BaSui01/supportrag/internal/cache"
	"github.com/BaSui01/supportrag/internal/metrics"
	"github.com/BaSui01/supportrag/internal/pool"
	"github.com/BaSui01/supportrag/internal/server"
	"github.com/BaSui01/supportrag/internal/telemetry"
	"github.com/BaSui01/supportrag/llm"
	"github.com/BaSui01/supportrag/llm/embedding"
	"github.com/BaSui01/supportrag/llm/providers/gemini"
	"github.com/BaSui01/supportrag/rag"
)

// =============================================================================
// 🧩 组件
// =============================================================================

// components 启动时构建一次的全部依赖。
// 可选依赖（Redis、MongoDB、Gemini、JWT）缺失时以降级变体代替。
type components struct {
	telemetry *telemetry.Providers
	collector *metrics.Collector

	redis     *cache.Manager
	responses cache.ResponseCache
	history   cache.MessageHistory

	store     rag.KnowledgeStore
	embedder  embedding.Embedder
	generator llm.Generator

	verifier handlers.TokenVerifier
}

// openComponents 连接外部依赖。只有配置错误（如无法解析的 JWT 公钥）会返回 error。
func openComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{}

	providers, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	c.telemetry = providers
	c.collector = metrics.NewCollector("supportrag", logger)

	c.redis, c.responses, c.history = openCache(ctx, cfg, logger)
	c.store, c.embedder = openKnowledge(ctx, cfg, logger)
	c.generator = gemini.New(geminiConfig(cfg.Gemini), logger)

	if cfg.JWT.Secret == "" && cfg.JWT.PublicKey == "" {
		logger.Warn("JWT not configured, all callers are treated as anonymous")
	} else {
		v, err := auth.NewVerifier(cfg.JWT, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build JWT verifier: %w", err)
		}
		c.verifier = v
	}

	return c, nil
}

// openCache Redis 可用时使用 Redis，否则使用进程内缓存
func openCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*cache.Manager, cache.ResponseCache, cache.MessageHistory) {
	if cfg.Redis.Addr != "" {
		rc := cache.DefaultConfig()
		rc.Addr = cfg.Redis.Addr
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		if cfg.Redis.PoolSize > 0 {
			rc.PoolSize = cfg.Redis.PoolSize
		}
		if cfg.Redis.MinIdleConns > 0 {
			rc.MinIdleConns = cfg.Redis.MinIdleConns
		}
		rc.TLS = cfg.Redis.TLS

		m, err := cache.NewManager(ctx, rc, logger)
		if err == nil {
			return m,
				cache.NewRedisResponseCache(m, logger),
				cache.NewRedisHistory(m, cfg.Cache.HistoryMax, cfg.Cache.HistoryTTL, logger)
		}
		logger.Warn("redis unavailable, using in-process cache", zap.Error(err))
	} else {
		logger.Info("redis not configured, using in-process cache")
	}
	return nil, cache.NewMemoryResponseCache(cfg.Cache.LocalMaxEntries), cache.NewMemoryHistory(cfg.Cache.HistoryMax)
}

// openKnowledge 构建知识库与嵌入器，serve 与 seed 共用
func openKnowledge(ctx context.Context, cfg *config.Config, logger *zap.Logger) (rag.KnowledgeStore, embedding.Embedder) {
	store := rag.OpenKnowledgeStore(ctx, rag.MongoConfig{
		URI:             cfg.Mongo.URI,
		Database:        cfg.Mongo.Database,
		Collection:      cfg.Mongo.Collection,
		VectorIndex:     cfg.Mongo.VectorIndex,
		TextIndex:       cfg.Mongo.TextIndex,
		MaxPoolSize:     cfg.Mongo.MaxPoolSize,
		ConnectTimeout:  cfg.Mongo.ConnectTimeout,
		ConnectAttempts: cfg.Mongo.ConnectAttempts,
	}, logger)

	embedder := embedding.NewGemini(embedding.GeminiConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	}, logger)

	return store, embedder
}

func geminiConfig(c config.GeminiConfig) gemini.Config {
	return gemini.Config{
		APIKey:          c.APIKey,
		BaseURL:         c.BaseURL,
		Model:           c.Model,
		Temperature:     c.Temperature,
		TopP:            c.TopP,
		TopK:            c.TopK,
		MaxOutputTokens: c.MaxOutputTokens,
		Timeout:         c.Timeout,
	}
}

func ragOptions(cfg *config.Config) rag.Options {
	return rag.Options{
		Thresholds:       rag.Thresholds{High: cfg.RAG.HighThreshold, Low: cfg.RAG.LowThreshold},
		MaxResults:       cfg.RAG.MaxResults,
		MaxContextLength: cfg.RAG.MaxContextLength,
		HistoryTurns:     cfg.RAG.HistoryTurns,
		ProviderTimeout:  cfg.RAG.ProviderTimeout,
		CacheEnabled:     cfg.RAG.CacheEnabled,
		CacheTTL:         cfg.Cache.ResponseTTL,
	}
}

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 持有组件与 handlers，负责路由与双端口生命周期
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	deps   *components

	orchestrator *rag.Orchestrator
	jobs         *pool.Pool

	healthHandler *handlers.HealthHandler
	chatHandler   *handlers.ChatHandler
	wsHandler     *handlers.WSHandler
	faqHandler    *handlers.FAQHandler
}

// NewServer 连接所有依赖并构建 handlers
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	deps, err := openComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return newServer(cfg, deps, logger), nil
}

func newServer(cfg *config.Config, deps *components, logger *zap.Logger) *Server {
	s := &Server{cfg: cfg, logger: logger, deps: deps}

	var observer rag.Observer = rag.NopObserver{}
	var wsMetrics handlers.WSMetrics
	if deps.collector != nil {
		observer = deps.collector
		wsMetrics = deps.collector
	}

	s.orchestrator = rag.NewOrchestrator(ragOptions(cfg), rag.Dependencies{
		Embedder:  deps.embedder,
		Store:     deps.store,
		Generator: deps.generator,
		Cache:     deps.responses,
		Observer:  observer,
	}, logger)

	s.healthHandler = handlers.NewHealthHandler(logger)
	if deps.store.Available() {
		s.healthHandler.RegisterCheck(handlers.NewCheck("mongodb", deps.store.Ping))
	}
	if deps.redis != nil {
		s.healthHandler.RegisterCheck(handlers.NewCheck("redis", deps.redis.Ping))
	}

	s.chatHandler = handlers.NewChatHandler(s.orchestrator, deps.history, cfg.RAG.HistoryTurns, logger)
	s.jobs = pool.New(pool.Config{
		Workers:   cfg.Server.PipelineWorkers,
		QueueSize: cfg.Server.PipelineQueueSize,
	}, logger)
	s.wsHandler = handlers.NewWSHandler(s.chatHandler, deps.verifier, wsMetrics, originPatterns(cfg.Server.CORSAllowedOrigins), logger).
		WithTaskPool(s.jobs)
	s.faqHandler = handlers.NewFAQHandler(deps.store, deps.embedder, s.orchestrator, logger)

	return s
}

// Handler 注册路由并套上中间件链。ctx 结束时限流器的清理协程退出。
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 聊天
	mux.HandleFunc("POST /api/v1/chat", s.chatHandler.HandleChat)
	mux.HandleFunc("GET /api/v1/chat/history", s.chatHandler.HandleHistory)
	mux.Handle("GET /ws/chat", s.wsHandler)

	// FAQ 管理
	mux.HandleFunc("GET /api/v1/faqs", s.faqHandler.HandleSearch)
	mux.HandleFunc("POST /api/v1/faqs", s.faqHandler.HandleCreate)
	mux.HandleFunc("GET /api/v1/faqs/categories", s.faqHandler.HandleCategories)
	mux.HandleFunc("GET /api/v1/faqs/{id}", s.faqHandler.HandleGet)
	mux.HandleFunc("PUT /api/v1/faqs/{id}", s.faqHandler.HandleUpdate)
	mux.HandleFunc("DELETE /api/v1/faqs/{id}", s.faqHandler.HandleDelete)

	// 管线
	mux.HandleFunc("GET /api/v1/rag/stats", s.faqHandler.HandleStats)
	mux.HandleFunc("POST /api/v1/rag/test", s.faqHandler.HandleTest)

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
	}
	if s.deps.collector != nil {
		chain = append(chain, MetricsMiddleware(s.deps.collector))
	}
	if s.deps.telemetry.Enabled() {
		chain = append(chain, OTelTracing())
	}
	chain = append(chain,
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		JWTAuth(s.deps.verifier, publicPath, s.logger),
	)

	return Chain(mux, chain...)
}

// Run 启动 API 与 Metrics 两个端口，阻塞到 ctx 结束或任一服务出错
func (s *Server) Run(ctx context.Context) error {
	api := server.NewManager("http", s.Handler(ctx), server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := server.NewManager("metrics", metricsMux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	s.logger.Info("Starting servers",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("jwt_enabled", s.deps.verifier != nil),
		zap.Bool("redis_enabled", s.deps.redis != nil),
		zap.Bool("knowledge_store_available", s.deps.store.Available()),
	)

	return server.Run(ctx, s.logger, api, metricsServer)
}

// Close 释放外部连接与遥测导出器
func (s *Server) Close(ctx context.Context) {
	var result *multierror.Error

	s.jobs.Close()
	s.logger.Info("pipeline pool drained", zap.Any("stats", s.jobs.Stats()))

	if err := s.deps.store.Close(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("knowledge store: %w", err))
	}
	if s.deps.redis != nil {
		if err := s.deps.redis.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("redis: %w", err))
		}
	}
	if err := s.deps.telemetry.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("telemetry: %w", err))
	}

	if err := result.ErrorOrNil(); err != nil {
		s.logger.Error("shutdown completed with errors", zap.Error(err))
		return
	}
	s.logger.Info("Graceful shutdown completed")
}

// originPatterns 将 CORS 来源转换为 websocket.AcceptOptions 需要的 host 模式
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}
