package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/supportrag/internal/tlsutil"
	"github.com/BaSui01/supportrag/llm/providers"
	"github.com/BaSui01/supportrag/types"
)

const (
	geminiProviderName = "gemini-embedding"
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	geminiModel        = "text-embedding-004"
	geminiDimensions   = 768
)

// GeminiConfig 配置 Gemini 嵌入提供者
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// GeminiProvider 使用 Gemini embedContent 接口生成嵌入
// 注: Gemini 使用 /models/{model}:embedContent 端点与 x-goog-api-key 认证
type GeminiProvider struct {
	cfg    GeminiConfig
	client *http.Client
	logger *zap.Logger
}

// NewGemini 创建嵌入器。APIKey 为空时返回 Unavailable 变体
func NewGemini(cfg GeminiConfig, logger *zap.Logger) Embedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Warn("embedding API key not provided, embedding disabled")
		dims := cfg.Dimensions
		if dims == 0 {
			dims = geminiDimensions
		}
		return Unavailable{Provider: geminiProviderName, Reason: "embedding api key not configured", Dims: dims}
	}
	return NewGeminiProvider(cfg, logger)
}

// NewGeminiProvider 创建 Gemini 嵌入提供者，不检查凭证
func NewGeminiProvider(cfg GeminiConfig, logger *zap.Logger) *GeminiProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = geminiModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = geminiDimensions
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &GeminiProvider{
		cfg:    cfg,
		client: tlsutil.NewProviderClient(timeout),
		logger: logger.With(zap.String("component", "embedding")),
	}
}

func (p *GeminiProvider) Model() string   { return p.cfg.Model }
func (p *GeminiProvider) Dimensions() int { return p.cfg.Dimensions }
func (p *GeminiProvider) Available() bool { return true }

type geminiEmbedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

// Embed 使用 Gemini API 生成嵌入
func (p *GeminiProvider) Embed(ctx context.Context, text, category string) ([]float64, error) {
	body := geminiEmbedRequest{
		Model: "models/" + p.cfg.Model,
		Content: geminiContent{
			Parts: []geminiPart{{Text: Augment(text, category)}},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:embedContent", strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(geminiProviderName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, geminiProviderName)
	}

	var gResp geminiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&gResp); err != nil {
		return nil, types.NewProviderError(geminiProviderName, http.StatusBadGateway, "failed to decode gemini response").
			WithCause(err)
	}

	values := gResp.Embedding.Values
	if len(values) == 0 {
		return nil, types.NewError(types.ErrEmptyResult, "no embedding values returned").
			WithProvider(geminiProviderName)
	}
	if len(values) != p.cfg.Dimensions {
		return nil, types.NewError(types.ErrDimensionMismatch,
			fmt.Sprintf("expected %d dimensions, got %d", p.cfg.Dimensions, len(values))).
			WithProvider(geminiProviderName)
	}

	p.logger.Debug("embedding generated",
		zap.Int("text_length", len(text)),
		zap.Bool("category_augmented", category != ""))

	return values, nil
}
