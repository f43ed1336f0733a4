package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// 健康状态取值
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthCheck 依赖检查
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger  *zap.Logger
	timeout time.Duration
	checks  []HealthCheck
	mu      sync.RWMutex
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger.With(zap.String("component", "health")),
		timeout: 5 * time.Second,
	}
}

// RegisterCheck 注册依赖检查。只注册已配置的依赖，未配置的依赖不影响就绪状态。
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health：运行全部检查，有失败时返回 degraded，状态码仍为 200
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status, ok := h.run(r.Context())
	if !ok {
		status.Status = StatusDegraded
	}
	WriteJSON(w, http.StatusOK, status)
}

// HandleHealthz 处理 /healthz：存活探针，不检查依赖
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{Status: StatusHealthy, Timestamp: time.Now()})
}

// HandleReady 处理 /ready：任一检查失败返回 503
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	status, ok := h.run(r.Context())
	if !ok {
		status.Status = StatusUnhealthy
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// HandleVersion 处理 /version
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// run 并发执行全部检查
func (h *HealthHandler) run(ctx context.Context) (HealthStatus, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
		ok = true
	)
	for _, check := range checks {
		wg.Add(1)
		go func(check HealthCheck) {
			defer wg.Done()
			start := time.Now()
			err := check.Check(ctx)
			latency := time.Since(start)

			result := CheckResult{Status: "pass", Latency: latency.String()}
			if err != nil {
				result.Status = "fail"
				result.Message = err.Error()
				h.logger.Warn("health check failed",
					zap.String("check", check.Name()),
					zap.Error(err),
					zap.Duration("latency", latency),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			status.Checks[check.Name()] = result
			if err != nil {
				ok = false
			}
		}(check)
	}
	wg.Wait()

	return status, ok
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// FuncCheck 以 ping 函数实现 HealthCheck，用于 MongoDB、Redis 等依赖
type FuncCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewCheck 创建基于函数的检查
func NewCheck(name string, ping func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{name: name, ping: ping}
}

func (c *FuncCheck) Name() string                    { return c.name }
func (c *FuncCheck) Check(ctx context.Context) error { return c.ping(ctx) }
