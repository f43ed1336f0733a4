// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 0.85, cfg.RAG.HighThreshold)
	assert.Equal(t, 0.75, cfg.RAG.LowThreshold)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

rag:
  high_threshold: 0.9
  low_threshold: 0.7
  max_results: 5
  provider_timeout: 3s

mongo:
  uri: "mongodb://mongo.example.com:27017"
  database: "faq"

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, 0.9, cfg.RAG.HighThreshold)
	assert.Equal(t, 0.7, cfg.RAG.LowThreshold)
	assert.Equal(t, 5, cfg.RAG.MaxResults)
	assert.Equal(t, 3*time.Second, cfg.RAG.ProviderTimeout)

	assert.Equal(t, "mongodb://mongo.example.com:27017", cfg.Mongo.URI)
	assert.Equal(t, "faq", cfg.Mongo.Database)
	// 未覆盖的字段保留默认值
	assert.Equal(t, "faq_knowledge_base", cfg.Mongo.Collection)

	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("SUPPORTRAG_SERVER_HTTP_PORT", "7777")
	t.Setenv("SUPPORTRAG_GEMINI_API_KEY", "env-key")
	t.Setenv("SUPPORTRAG_GEMINI_MODEL", "gemini-2.0-flash")
	t.Setenv("SUPPORTRAG_RAG_MAX_RESULTS", "4")
	t.Setenv("SUPPORTRAG_RAG_HIGH_THRESHOLD", "0.88")
	t.Setenv("SUPPORTRAG_RAG_CACHE_ENABLED", "false")
	t.Setenv("SUPPORTRAG_MONGO_MAX_POOL_SIZE", "20")
	t.Setenv("SUPPORTRAG_SERVER_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SUPPORTRAG_CACHE_RESPONSE_TTL", "2h")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, "env-key", cfg.Gemini.APIKey)
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	assert.Equal(t, 4, cfg.RAG.MaxResults)
	assert.Equal(t, 0.88, cfg.RAG.HighThreshold)
	assert.False(t, cfg.RAG.CacheEnabled)
	assert.Equal(t, uint64(20), cfg.Mongo.MaxPoolSize)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, 2*time.Hour, cfg.Cache.ResponseTTL)
}

func TestLoader_EmbeddingFallsBackToGeminiKey(t *testing.T) {
	t.Setenv("SUPPORTRAG_GEMINI_API_KEY", "shared-key")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "shared-key", cfg.Embedding.APIKey)
	assert.Equal(t, cfg.Gemini.BaseURL, cfg.Embedding.BaseURL)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
gemini:
  model: "yaml-model"
  api_key: "yaml-key"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	t.Setenv("SUPPORTRAG_SERVER_HTTP_PORT", "9999")
	t.Setenv("SUPPORTRAG_GEMINI_API_KEY", "env-key")

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "env-key", cfg.Gemini.APIKey)
	assert.Equal(t, "yaml-model", cfg.Gemini.Model)
}

func TestLoader_DotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("DOTENVTEST_MONGO_URI=mongodb://dotenv:27017\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("DOTENVTEST_MONGO_URI") })

	cfg, err := NewLoader().
		WithEnvPrefix("DOTENVTEST").
		WithDotEnv(envPath, filepath.Join(tmpDir, "missing.env")).
		Load()
	require.NoError(t, err)

	assert.Equal(t, "mongodb://dotenv:27017", cfg.Mongo.URI)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")
	t.Setenv("MYAPP_JWT_ISSUER", "custom-issuer")

	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
	assert.Equal(t, "custom-issuer", cfg.JWT.Issuer)
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}

	t.Setenv("SUPPORTRAG_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().
		WithValidator(validator).
		Load()
	assert.Error(t, err)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("SUPPORTRAG_RAG_PROVIDER_TIMEOUT", "ten seconds")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPPORTRAG_RAG_PROVIDER_TIMEOUT")
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	_, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid HTTP port (negative)",
			modify:  func(c *Config) { c.Server.HTTPPort = -1 },
			wantErr: true,
		},
		{
			name:    "invalid HTTP port (too large)",
			modify:  func(c *Config) { c.Server.HTTPPort = 70000 },
			wantErr: true,
		},
		{
			name: "low threshold above high threshold",
			modify: func(c *Config) {
				c.RAG.LowThreshold = 0.9
				c.RAG.HighThreshold = 0.8
			},
			wantErr: true,
		},
		{
			name:    "threshold out of cosine range",
			modify:  func(c *Config) { c.RAG.HighThreshold = 1.5 },
			wantErr: true,
		},
		{
			name:    "zero max results",
			modify:  func(c *Config) { c.RAG.MaxResults = 0 },
			wantErr: true,
		},
		{
			name:    "zero provider timeout",
			modify:  func(c *Config) { c.RAG.ProviderTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero pipeline workers",
			modify:  func(c *Config) { c.Server.PipelineWorkers = 0 },
			wantErr: true,
		},
		{
			name:    "unbuffered pipeline queue",
			modify:  func(c *Config) { c.Server.PipelineQueueSize = 0 },
			wantErr: false,
		},
		{
			name:    "invalid temperature (too high)",
			modify:  func(c *Config) { c.Gemini.Temperature = 3.0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8181\n"), 0644))

	cfg := MustLoad(configPath)
	assert.Equal(t, 8181, cfg.Server.HTTPPort)
}

func TestMustLoad_Panics(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [oops"), 0644))

	assert.Panics(t, func() { MustLoad(configPath) })
}
