// =============================================================================
// 📦 supportrag 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Redis:     DefaultRedisConfig(),
		Mongo:     DefaultMongoConfig(),
		Gemini:    DefaultGeminiConfig(),
		Embedding: DefaultEmbeddingConfig(),
		RAG:       DefaultRAGConfig(),
		Cache:     DefaultCacheConfig(),
		JWT:       DefaultJWTConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,

		PipelineWorkers:   16,
		PipelineQueueSize: 256,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "supportrag",
		SampleRate:   0.1,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultMongoConfig 返回默认知识库配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		Database:        "ecommerce_faq",
		Collection:      "faq_knowledge_base",
		VectorIndex:     "vector_search_index",
		TextIndex:       "text_search_index",
		MaxPoolSize:     10,
		ConnectTimeout:  10 * time.Second,
		ConnectAttempts: 3,
	}
}

// DefaultGeminiConfig 返回默认生成模型配置
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
		Model:           "gemini-2.5-flash",
		Temperature:     0.7,
		TopP:            0.8,
		TopK:            40,
		MaxOutputTokens: 1024,
		Timeout:         30 * time.Second,
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Model:      "text-embedding-004",
		Dimensions: 768,
		BatchSize:  10,
		ItemDelay:  200 * time.Millisecond,
		BatchDelay: time.Second,
		Timeout:    30 * time.Second,
	}
}

// DefaultRAGConfig 返回默认 RAG 配置
func DefaultRAGConfig() RAGConfig {
	return RAGConfig{
		HighThreshold:    0.85,
		LowThreshold:     0.75,
		MaxResults:       3,
		MaxContextLength: 4000,
		HistoryTurns:     5,
		ProviderTimeout:  10 * time.Second,
		CacheEnabled:     true,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		ResponseTTL:     24 * time.Hour,
		HistoryTTL:      time.Hour,
		HistoryMax:      100,
		LocalMaxEntries: 1000,
	}
}

// DefaultJWTConfig 返回默认 JWT 配置
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		Issuer:   "toxicity-api",
		Audience: "toxicity-client",
	}
}
