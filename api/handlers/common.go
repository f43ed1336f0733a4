package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/supportrag/types"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 1 << 20

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	// 头已写出，编码失败无法再改状态码
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入 200 成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: data, Timestamp: time.Now()})
}

// WriteCreated 写入 201 成功响应
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: data, Timestamp: time.Now()})
}

// WriteError 写入错误响应。非 *types.Error 按 INTERNAL_ERROR 处理，内部细节不外泄。
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	e, ok := types.AsError(err)
	if !ok {
		e = types.NewError(types.ErrInternalError, "internal server error").WithCause(err)
	}

	status := e.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(e.Code)
	}

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(e.Code)),
			zap.String("message", e.Message),
			zap.Int("status", status),
		}
		if e.Cause != nil {
			fields = append(fields, zap.Error(e.Cause))
		}
		if status >= http.StatusInternalServerError {
			logger.Error("API error", fields...)
		} else {
			logger.Debug("API error", fields...)
		}
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      string(e.Code),
			Message:   e.Message,
			Retryable: e.Retryable,
		},
		Timestamp: time.Now(),
	})
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// =============================================================================
// 🔄 错误码到 HTTP 状态码映射
// =============================================================================

func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidRequest, types.ErrDimensionMismatch, types.ErrZeroVector, types.ErrInvalidVector:
		return http.StatusBadRequest
	case types.ErrUnauthorized, types.ErrInvalidCredential:
		return http.StatusUnauthorized
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	case types.ErrProviderUnavailable, types.ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrProviderError, types.ErrEmptyResponse, types.ErrEmptyResult:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// 🛡️ 请求解析
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体（1 MB 上限，拒绝未知字段）。失败时已写出 400。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		msg := "invalid JSON body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		}
		apiErr := types.NewError(types.ErrInvalidRequest, msg).WithCause(err).WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, apiErr, logger)
		return apiErr
	}
	return nil
}

// ValidateContentType 要求 application/json。失败时已写出 400。
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	ct := strings.TrimSpace(strings.SplitN(r.Header.Get("Content-Type"), ";", 2)[0])
	if !strings.EqualFold(ct, "application/json") {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json"), logger)
		return false
	}
	return true
}

// QueryInt 读取正整数查询参数，缺省或非法时返回 def，超过 max 时截断
func QueryInt(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码与写出字节数。
// 实现 Hijacker 与 Unwrap，WebSocket 升级可以穿过中间件。
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode   int
	Written      bool
	BytesWritten int64
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader 只记录第一次写入的状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.BytesWritten += int64(n)
	return n, err
}

// Flush 实现 http.Flusher
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack 实现 http.Hijacker。升级成功视为 101。
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
	}
	conn, buf, err := h.Hijack()
	if err == nil && !rw.Written {
		rw.StatusCode = http.StatusSwitchingProtocols
		rw.Written = true
	}
	return conn, buf, err
}

// Unwrap 供 http.ResponseController 使用
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
