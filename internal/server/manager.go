package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

// Manager 管理单个 http.Server 的监听与关闭
type Manager struct {
	name     string
	server   *http.Server
	listener net.Listener
	errCh    chan error
	config   Config
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool
}

// Config 服务器配置
type Config struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" json:"max_header_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回默认服务器配置。
// WriteTimeout 需要覆盖一次完整的生成调用，因此比读超时长。
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// NewManager 创建服务器管理器，name 用于日志区分 api / metrics 等实例
func NewManager(name string, handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		name: name,
		server: &http.Server{
			Addr:           config.Addr,
			Handler:        handler,
			ReadTimeout:    config.ReadTimeout,
			WriteTimeout:   config.WriteTimeout,
			IdleTimeout:    config.IdleTimeout,
			MaxHeaderBytes: config.MaxHeaderBytes,
		},
		errCh:  make(chan error, 1),
		config: config,
		logger: logger.With(zap.String("component", "http_server"), zap.String("server", name)),
	}
}

// =============================================================================
// 🎯 生命周期
// =============================================================================

// Start 开始监听并在后台提供服务
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("%s server is closed", m.name)
	}
	if m.listener != nil {
		return fmt.Errorf("%s server already started", m.name)
	}

	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = listener
	m.logger.Info("starting HTTP server", zap.String("addr", listener.Addr().String()))

	go m.serve(listener)
	return nil
}

func (m *Manager) serve(listener net.Listener) {
	if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Error("HTTP server failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}
}

// Shutdown 在 ShutdownTimeout 内排空请求后关闭，重复调用无副作用
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ShutdownTimeout)
		defer cancel()
	}

	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Error("HTTP server shutdown failed", zap.Error(err))
		return fmt.Errorf("shutdown %s server: %w", m.name, err)
	}
	m.listener = nil
	m.logger.Info("HTTP server stopped")
	return nil
}

// Errors 返回服务异常退出时的错误
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// =============================================================================
// 🔧 辅助方法
// =============================================================================

// Name 返回实例名
func (m *Manager) Name() string { return m.name }

// Addr 返回实际监听地址，未启动时返回配置地址
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.config.Addr
}

// IsRunning 是否尚未关闭
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

// =============================================================================
// 🧩 多实例运行
// =============================================================================

// Run 启动全部服务器，直到 ctx 取消或任一服务器异常退出，然后并发关闭全部实例。
// ctx 正常取消时返回 nil。
func Run(ctx context.Context, logger *zap.Logger, managers ...*Manager) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for i, m := range managers {
		if err := m.Start(); err != nil {
			shutdownAll(context.Background(), managers[:i])
			return err
		}
	}

	var serveErr error
	done := make(chan struct{})
	errs := make(chan error, len(managers))
	for _, m := range managers {
		go func(m *Manager) {
			select {
			case err := <-m.Errors():
				errs <- fmt.Errorf("%s server: %w", m.Name(), err)
			case <-done:
			}
		}(m)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case serveErr = <-errs:
		logger.Error("server exited unexpectedly", zap.Error(serveErr))
	}
	close(done)

	if err := shutdownAll(context.Background(), managers); err != nil {
		return err
	}
	return serveErr
}

func shutdownAll(ctx context.Context, managers []*Manager) error {
	var g errgroup.Group
	for _, m := range managers {
		g.Go(func() error { return m.Shutdown(ctx) })
	}
	return g.Wait()
}
