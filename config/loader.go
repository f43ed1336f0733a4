// =============================================================================
// 📦 supportrag 配置加载器
// =============================================================================
// 统一配置加载，支持 .env + YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithDotEnv(".env").
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("SUPPORTRAG").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是服务的完整配置结构，启动时构建一次，之后只读
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Mongo     MongoConfig     `yaml:"mongo" env:"MONGO"`
	Gemini    GeminiConfig    `yaml:"gemini" env:"GEMINI"`
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`
	RAG       RAGConfig       `yaml:"rag" env:"RAG"`
	Cache     CacheConfig     `yaml:"cache" env:"CACHE"`
	JWT       JWTConfig       `yaml:"jwt" env:"JWT"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个 IP 每秒请求数
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 突发请求数
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的跨域来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// WebSocket 管线并发数，所有会话共享
	PipelineWorkers int `yaml:"pipeline_workers" env:"PIPELINE_WORKERS"`
	// 等待执行的管线任务上限，超出时返回 SERVER_BUSY
	PipelineQueueSize int `yaml:"pipeline_queue_size" env:"PIPELINE_QUEUE_SIZE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// RedisConfig Redis 配置。Addr 为空时使用进程内缓存
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	TLS          bool   `yaml:"tls" env:"TLS"`
}

// MongoConfig FAQ 知识库配置。URI 为空时知识库不可用
type MongoConfig struct {
	URI             string        `yaml:"uri" env:"URI"`
	Database        string        `yaml:"database" env:"DATABASE"`
	Collection      string        `yaml:"collection" env:"COLLECTION"`
	VectorIndex     string        `yaml:"vector_index" env:"VECTOR_INDEX"`
	TextIndex       string        `yaml:"text_index" env:"TEXT_INDEX"`
	MaxPoolSize     uint64        `yaml:"max_pool_size" env:"MAX_POOL_SIZE"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	ConnectAttempts uint          `yaml:"connect_attempts" env:"CONNECT_ATTEMPTS"`
}

// GeminiConfig 生成模型配置。APIKey 为空时生成能力不可用
type GeminiConfig struct {
	APIKey          string        `yaml:"api_key" env:"API_KEY"`
	BaseURL         string        `yaml:"base_url" env:"BASE_URL"`
	Model           string        `yaml:"model" env:"MODEL"`
	Temperature     float64       `yaml:"temperature" env:"TEMPERATURE"`
	TopP            float64       `yaml:"top_p" env:"TOP_P"`
	TopK            int           `yaml:"top_k" env:"TOP_K"`
	MaxOutputTokens int           `yaml:"max_output_tokens" env:"MAX_OUTPUT_TOKENS"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// EmbeddingConfig 嵌入模型配置。APIKey 为空时回退到 Gemini.APIKey
type EmbeddingConfig struct {
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Model      string        `yaml:"model" env:"MODEL"`
	Dimensions int           `yaml:"dimensions" env:"DIMENSIONS"`
	BatchSize  int           `yaml:"batch_size" env:"BATCH_SIZE"`
	ItemDelay  time.Duration `yaml:"item_delay" env:"ITEM_DELAY"`
	BatchDelay time.Duration `yaml:"batch_delay" env:"BATCH_DELAY"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RAGConfig 检索增强管线配置
type RAGConfig struct {
	// 高置信度阈值
	HighThreshold float64 `yaml:"high_threshold" env:"HIGH_THRESHOLD"`
	// 低置信度阈值，低于此分数的结果不返回
	LowThreshold float64 `yaml:"low_threshold" env:"LOW_THRESHOLD"`
	// 最大检索条数
	MaxResults int `yaml:"max_results" env:"MAX_RESULTS"`
	// 提示词中上下文块的最大字符数
	MaxContextLength int `yaml:"max_context_length" env:"MAX_CONTEXT_LENGTH"`
	// 携带的最近对话轮数
	HistoryTurns int `yaml:"history_turns" env:"HISTORY_TURNS"`
	// 单次外部调用超时
	ProviderTimeout time.Duration `yaml:"provider_timeout" env:"PROVIDER_TIMEOUT"`
	// 是否启用回答缓存
	CacheEnabled bool `yaml:"cache_enabled" env:"CACHE_ENABLED"`
}

// CacheConfig 缓存 TTL 配置
type CacheConfig struct {
	ResponseTTL     time.Duration `yaml:"response_ttl" env:"RESPONSE_TTL"`
	HistoryTTL      time.Duration `yaml:"history_ttl" env:"HISTORY_TTL"`
	HistoryMax      int           `yaml:"history_max" env:"HISTORY_MAX"`
	LocalMaxEntries int           `yaml:"local_max_entries" env:"LOCAL_MAX_ENTRIES"`
}

// JWTConfig JWT 校验配置
type JWTConfig struct {
	Secret    string `yaml:"secret" env:"SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	dotEnv     []string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SUPPORTRAG",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithDotEnv 在读取环境变量之前加载 .env 文件，已存在的环境变量不会被覆盖
func (l *Loader) WithDotEnv(paths ...string) *Loader {
	l.dotEnv = append(l.dotEnv, paths...)
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := l.loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.applyFallbacks()

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadDotEnv 加载 .env 文件，文件不存在时跳过
func (l *Loader) loadDotEnv() error {
	for _, p := range l.dotEnv {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration 按时长字符串解析
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// applyFallbacks 处理跨段的默认值
func (c *Config) applyFallbacks() {
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = c.Gemini.APIKey
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = c.Gemini.BaseURL
	}
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.PipelineWorkers <= 0 {
		errs = append(errs, "pipeline_workers must be positive")
	}
	if c.Server.PipelineQueueSize < 0 {
		errs = append(errs, "pipeline_queue_size must not be negative")
	}
	if c.RAG.LowThreshold < -1 || c.RAG.HighThreshold > 1 {
		errs = append(errs, "similarity thresholds must be within [-1, 1]")
	}
	if c.RAG.LowThreshold > c.RAG.HighThreshold {
		errs = append(errs, "low_threshold must not exceed high_threshold")
	}
	if c.RAG.MaxResults <= 0 {
		errs = append(errs, "max_results must be positive")
	}
	if c.RAG.ProviderTimeout <= 0 {
		errs = append(errs, "provider_timeout must be positive")
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, "embedding dimensions must be positive")
	}
	if c.Gemini.Temperature < 0 || c.Gemini.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
