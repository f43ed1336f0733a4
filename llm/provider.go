package llm

import (
	"context"

	"github.com/BaSui01/supportrag/types"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn 是一轮对话，按时间顺序排列，最新的在最后。
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest 纯文本进，纯文本出。
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateResponse 生成结果。RawLength 为修剪空白前的原始文本字节数。
type GenerateResponse struct {
	Text         string `json:"text"`
	RawLength    int    `json:"raw_length"`
	Model        string `json:"model"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// Generator 文本生成能力。
// 未配置凭证时使用 Unavailable 变体，调用方无需提前判断可用性。
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	// Model 返回模型名，用于结果元数据
	Model() string
	// Available 仅用于统计与健康检查
	Available() bool
}

// UnavailableGenerator 是 Generator 的不可用变体，每次调用都返回 PROVIDER_UNAVAILABLE。
type UnavailableGenerator struct {
	Provider string
	Reason   string
}

func (u UnavailableGenerator) Generate(context.Context, GenerateRequest) (*GenerateResponse, error) {
	return nil, types.NewProviderUnavailable(u.Provider, u.Reason)
}

func (u UnavailableGenerator) Model() string   { return "unavailable" }
func (u UnavailableGenerator) Available() bool { return false }
