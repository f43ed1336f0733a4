// Package embedding 提供文本嵌入接口及其 Gemini 实现。
package embedding

import (
	"context"

	"github.com/BaSui01/supportrag/types"
)

// Embedder 将文本转换为固定维度的向量
type Embedder interface {
	// Embed 嵌入单条文本。category 非空时以 "{category}: " 作为前缀
	Embed(ctx context.Context, text, category string) ([]float64, error)

	// Model 返回嵌入模型名
	Model() string

	// Dimensions 返回向量维度
	Dimensions() int

	// Available 仅用于统计与健康检查
	Available() bool
}

// Augment 返回带分类前缀的待嵌入文本
func Augment(text, category string) string {
	if category == "" {
		return text
	}
	return category + ": " + text
}

// Unavailable 是未配置凭证时的 Embedder 变体
type Unavailable struct {
	Provider string
	Reason   string
	Dims     int
}

func (u Unavailable) Embed(context.Context, string, string) ([]float64, error) {
	return nil, types.NewProviderUnavailable(u.Provider, u.Reason)
}

func (u Unavailable) Model() string   { return "unavailable" }
func (u Unavailable) Dimensions() int { return u.Dims }
func (u Unavailable) Available() bool { return false }
