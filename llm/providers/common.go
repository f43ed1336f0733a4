package providers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BaSui01/supportrag/types"
)

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 64 << 10

// MapHTTPError 将 HTTP 状态码映射为 types.Error
// 401/403 映射为凭证错误，429 和 5xx 标记为可重试
func MapHTTPError(status int, msg string, provider string) *types.Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.NewError(types.ErrInvalidCredential, msg).
			WithProvider(provider).
			WithHTTPStatus(status)
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).
			WithProvider(provider).
			WithHTTPStatus(status).
			WithRetryable(true)
	case status == http.StatusBadRequest:
		// 配额耗尽时 Google 有时返回 400
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "exhausted") {
			return types.NewError(types.ErrRateLimited, msg).
				WithProvider(provider).
				WithHTTPStatus(status)
		}
		return types.NewProviderError(provider, status, msg)
	default:
		return types.NewProviderError(provider, status, msg)
	}
}

// ReadErrorMessage 读取响应体中的错误消息
// 识别 Google 风格的 {"error":{"message","status"}}，失败则回退到原始文本
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return "failed to read error response"
	}

	if !gjson.ValidBytes(data) {
		return strings.TrimSpace(string(data))
	}

	msg := gjson.GetBytes(data, "error.message").String()
	if msg == "" {
		return strings.TrimSpace(string(data))
	}
	if status := gjson.GetBytes(data, "error.status").String(); status != "" {
		return fmt.Sprintf("%s (status: %s)", msg, status)
	}
	return msg
}

// TransportError 包装网络层错误，上游不可达视为可重试
func TransportError(provider string, err error) *types.Error {
	return types.NewError(types.ErrProviderError, err.Error()).
		WithProvider(provider).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithCause(err)
}
