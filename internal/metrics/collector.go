// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/supportrag/rag"
	"github.com/BaSui01/supportrag/types"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，同时实现 rag.Observer
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// RAG 指标
	ragQueriesTotal    *prometheus.CounterVec
	ragQueryDuration   *prometheus.HistogramVec
	ragStageDuration   *prometheus.HistogramVec
	ragFallbacksTotal  *prometheus.CounterVec
	providerCallsTotal *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// WebSocket 指标
	wsConnections *prometheus.GaugeVec
	wsMessages    *prometheus.CounterVec

	logger *zap.Logger
}

var _ rag.Observer = (*Collector)(nil)

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// RAG 指标
	c.ragQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rag_queries_total",
			Help:      "Total number of RAG queries by confidence level",
		},
		[]string{"confidence", "cached"},
	)

	c.ragQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rag_query_duration_seconds",
			Help:      "End-to-end RAG query duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"cached"},
	)

	c.ragStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rag_stage_duration_seconds",
			Help:      "RAG stage duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)

	c.ragFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rag_fallbacks_total",
			Help:      "Total number of RAG fallbacks triggered",
		},
		[]string{"kind"},
	)

	c.providerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Total number of external provider calls",
		},
		[]string{"provider", "status"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// WebSocket 指标
	c.wsConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections_active",
			Help:      "Number of active WebSocket connections",
		},
		[]string{"endpoint"},
	)

	c.wsMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Total number of WebSocket events",
		},
		[]string{"direction", "type"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔍 RAG 指标记录（rag.Observer）
// =============================================================================

// ObserveQuery 记录一次完整的 RAG 查询
func (c *Collector) ObserveQuery(level rag.ConfidenceLevel, cached bool, duration time.Duration) {
	cachedLabel := boolLabel(cached)
	c.ragQueriesTotal.WithLabelValues(string(level), cachedLabel).Inc()
	c.ragQueryDuration.WithLabelValues(cachedLabel).Observe(duration.Seconds())
}

// ObserveStage 记录单个阶段耗时
func (c *Collector) ObserveStage(stage string, duration time.Duration) {
	c.ragStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveCache 记录回答缓存命中情况
func (c *Collector) ObserveCache(hit bool) {
	if hit {
		c.RecordCacheHit("response")
		return
	}
	c.RecordCacheMiss("response")
}

// ObserveProviderCall 记录外部依赖调用结果
func (c *Collector) ObserveProviderCall(provider string, err error) {
	c.providerCallsTotal.WithLabelValues(provider, callStatus(err)).Inc()
}

// ObserveFallback 记录回退
func (c *Collector) ObserveFallback(kind string) {
	c.ragFallbacksTotal.WithLabelValues(kind).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🔌 WebSocket 指标记录
// =============================================================================

// WSConnected 连接建立时调用，返回的函数在断开时调用
func (c *Collector) WSConnected(endpoint string) func() {
	g := c.wsConnections.WithLabelValues(endpoint)
	g.Inc()
	return g.Dec
}

// RecordWSMessage 记录收发的 WebSocket 事件，direction 取 in / out
func (c *Collector) RecordWSMessage(direction, eventType string) {
	c.wsMessages.WithLabelValues(direction, eventType).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// callStatus 将调用错误归类为有限的标签值
func callStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case types.IsErrorCode(err, types.ErrProviderUnavailable):
		return "unavailable"
	case types.IsErrorCode(err, types.ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
