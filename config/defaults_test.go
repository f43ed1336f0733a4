package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, MongoConfig{}, cfg.Mongo)
	assert.NotEqual(t, GeminiConfig{}, cfg.Gemini)
	assert.NotEqual(t, EmbeddingConfig{}, cfg.Embedding)
	assert.NotEqual(t, RAGConfig{}, cfg.RAG)
	assert.NotEqual(t, CacheConfig{}, cfg.Cache)
	assert.NotEqual(t, JWTConfig{}, cfg.JWT)
}

// --- Individual Default*Config functions ---

func TestDefaultRAGConfig(t *testing.T) {
	cfg := DefaultRAGConfig()
	assert.Equal(t, 0.85, cfg.HighThreshold)
	assert.Equal(t, 0.75, cfg.LowThreshold)
	assert.Equal(t, 3, cfg.MaxResults)
	assert.Equal(t, 4000, cfg.MaxContextLength)
	assert.Equal(t, 5, cfg.HistoryTurns)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.True(t, cfg.CacheEnabled)
}

func TestDefaultEmbeddingConfig(t *testing.T) {
	cfg := DefaultEmbeddingConfig()
	assert.Equal(t, "text-embedding-004", cfg.Model)
	assert.Equal(t, 768, cfg.Dimensions)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 200*time.Millisecond, cfg.ItemDelay)
	assert.Equal(t, time.Second, cfg.BatchDelay)
}

func TestDefaultGeminiConfig(t *testing.T) {
	cfg := DefaultGeminiConfig()
	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 0.8, cfg.TopP)
	assert.Equal(t, 40, cfg.TopK)
	assert.Equal(t, 1024, cfg.MaxOutputTokens)
	assert.Empty(t, cfg.APIKey)
}

func TestDefaultMongoConfig(t *testing.T) {
	cfg := DefaultMongoConfig()
	assert.Empty(t, cfg.URI)
	assert.Equal(t, "ecommerce_faq", cfg.Database)
	assert.Equal(t, "faq_knowledge_base", cfg.Collection)
	assert.Equal(t, "vector_search_index", cfg.VectorIndex)
	assert.Equal(t, "text_search_index", cfg.TextIndex)
	assert.Equal(t, uint64(10), cfg.MaxPoolSize)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}

func TestDefaultCacheConfig(t *testing.T) {
	cfg := DefaultCacheConfig()
	assert.Equal(t, 24*time.Hour, cfg.ResponseTTL)
	assert.Equal(t, time.Hour, cfg.HistoryTTL)
	assert.Equal(t, 100, cfg.HistoryMax)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100, cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
	assert.Equal(t, 16, cfg.PipelineWorkers)
	assert.Equal(t, 256, cfg.PipelineQueueSize)
}

func TestDefaultJWTConfig(t *testing.T) {
	cfg := DefaultJWTConfig()
	assert.Equal(t, "toxicity-api", cfg.Issuer)
	assert.Equal(t, "toxicity-client", cfg.Audience)
}
