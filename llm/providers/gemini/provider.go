package gemini

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
	"github.com/BaSui01/supportrag/llm"
	"github.com/BaSui01/supportrag/llm/providers"
	"github.com/BaSui01/supportrag/types"
)

const (
	providerName   = "gemini"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash"
)

// Config Gemini 生成配置
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
	Timeout         time.Duration
}

// Provider 通过 generateContent 接口实现 llm.Generator
// 使用 x-goog-api-key 请求头认证
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New 创建 Gemini 生成器。APIKey 为空时返回不可用变体
func New(cfg Config, logger *zap.Logger) llm.Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "gemini"))

	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Warn("Gemini API key not provided, generation disabled")
		return llm.UnavailableGenerator{Provider: providerName, Reason: "gemini api key not configured"}
	}
	return NewProvider(cfg, logger)
}

// NewProvider 创建 Gemini Provider，不检查凭证
func NewProvider(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	logger.Info("Gemini provider initialized", zap.String("model", cfg.Model))

	return &Provider{
		cfg:    cfg,
		client: tlsutil.NewProviderClient(timeout),
		logger: logger,
	}
}

func (p *Provider) Model() string   { return p.cfg.Model }
func (p *Provider) Available() bool { return true }

// Generate 发送单轮用户提示词并返回生成文本
func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	body := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     p.cfg.Temperature,
			TopP:            p.cfg.TopP,
			TopK:            p.cfg.TopK,
			MaxOutputTokens: p.cfg.MaxOutputTokens,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		p.logger.Warn("generateContent failed",
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg))
		return nil, providers.MapHTTPError(resp.StatusCode, msg, providerName)
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, types.NewProviderError(providerName, http.StatusBadGateway, "malformed response: "+err.Error()).
			WithCause(err)
	}

	raw := gr.text()
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, types.NewError(types.ErrEmptyResponse, "empty response from gemini").
			WithProvider(providerName)
	}

	p.logger.Debug("response generated",
		zap.Int("prompt_length", len(req.Prompt)),
		zap.Int("response_length", len(raw)),
		zap.Duration("latency", time.Since(start)))

	out := &llm.GenerateResponse{Text: text, RawLength: len(raw), Model: p.cfg.Model}
	if gr.UsageMetadata != nil {
		out.PromptTokens = gr.UsageMetadata.PromptTokenCount
		out.OutputTokens = gr.UsageMetadata.CandidatesTokenCount
	}
	return out, nil
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-goog-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

// === Gemini 原生请求/响应结构 ===

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
}

// text 拼接第一个候选的所有文本分片
func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}
