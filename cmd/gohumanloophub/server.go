package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ptonlix/gohumanloophub/api/handlers"
	"github.com/ptonlix/gohumanloophub/config"
	"github.com/ptonlix/gohumanloophub/humanloop"
	"github.com/ptonlix/gohumanloophub/internal/auth"
	"github.com/ptonlix/gohumanloophub/internal/cache"
	"github.com/ptonlix/gohumanloophub/internal/database"
	"github.com/ptonlix/gohumanloophub/internal/metrics"
	"github.com/ptonlix/gohumanloophub/internal/server"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 GoHumanLoopHub 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB

	// 服务器管理器
	httpManager *server.Manager

	// 基础设施
	poolManager  *database.PoolManager
	cacheManager *cache.Manager
	validator    *auth.Validator

	// Handlers
	healthHandler    *handlers.HealthHandler
	authHandler      *handlers.AuthHandler
	humanloopHandler *handlers.HumanLoopHandler
	adminHandler     *handlers.AdminHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, db *gorm.DB) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	if s.cfg.Metrics.Enabled {
		s.metricsCollector = metrics.NewCollector(s.cfg.Metrics.Namespace, s.logger)
	}

	// 2. 初始化基础设施（连接池、缓存、认证）
	if err := s.initInfrastructure(); err != nil {
		return fmt.Errorf("failed to init infrastructure: %w", err)
	}

	// 3. 初始化 Handlers
	s.initHandlers()

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Bool("metrics_enabled", s.cfg.Metrics.Enabled),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initInfrastructure 初始化连接池、缓存与认证校验器
func (s *Server) initInfrastructure() error {
	// 数据库连接池
	poolConfig := database.DefaultPoolConfig()
	poolConfig.MaxIdleConns = s.cfg.Database.MaxIdleConns
	poolConfig.MaxOpenConns = s.cfg.Database.MaxOpenConns
	poolConfig.ConnMaxLifetime = s.cfg.Database.ConnMaxLifetime
	pool, err := database.NewPoolManager(s.db, poolConfig, s.metricsCollector, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init database pool: %w", err)
	}
	s.poolManager = pool

	// Redis 缓存（不可用时降级为纯数据库查找）
	cacheConfig := cache.Config{
		Addr:         s.cfg.Redis.Addr,
		Password:     s.cfg.Redis.Password,
		DB:           s.cfg.Redis.DB,
		PoolSize:     s.cfg.Redis.PoolSize,
		MinIdleConns: s.cfg.Redis.MinIdleConns,
		DefaultTTL:   s.cfg.Auth.APIKeyCacheTTL,
	}
	cacheManager, err := cache.NewManager(cacheConfig, s.logger)
	if err != nil {
		s.logger.Warn("Redis not available, API key cache disabled", zap.Error(err))
	} else {
		s.cacheManager = cacheManager
	}

	// 认证校验器
	s.validator = auth.NewValidator(
		s.db, s.cacheManager, s.metricsCollector,
		s.cfg.Auth.Secret, s.cfg.Auth.TokenTTL, s.logger,
	).WithAPIKeyCacheTTL(s.cfg.Auth.APIKeyCacheTTL)

	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	// 健康检查 handler
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("database", s.poolManager.Ping))
	if s.cacheManager != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", s.cacheManager.Ping))
	}

	// 人机协同引擎
	store := humanloop.NewStore(s.db, s.logger)
	engine := humanloop.NewEngine(store, s.metricsCollector, s.logger)
	query := humanloop.NewQuery(store, s.logger)

	s.authHandler = handlers.NewAuthHandler(s.validator, s.logger)
	s.humanloopHandler = handlers.NewHumanLoopHandler(engine, query, s.logger)
	s.adminHandler = handlers.NewAdminHandler(engine, query, s.logger)

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// Prometheus 指标端点
	if s.cfg.Metrics.Enabled {
		mux.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}

	// ========================================
	// 登录端点
	// ========================================
	mux.HandleFunc("POST /api/v1/login/access-token", s.authHandler.HandleLogin)

	// ========================================
	// 调用方 API（X-API-Key 认证）
	// ========================================
	callerMux := http.NewServeMux()
	callerMux.HandleFunc("POST /api/v1/humanloop/request", s.humanloopHandler.HandleCreateRequest)
	callerMux.HandleFunc("GET /api/v1/humanloop/status", s.humanloopHandler.HandleGetStatus)
	callerMux.HandleFunc("POST /api/v1/humanloop/cancel", s.humanloopHandler.HandleCancel)
	callerMux.HandleFunc("POST /api/v1/humanloop/cancel_conversation", s.humanloopHandler.HandleCancelConversation)
	callerMux.HandleFunc("POST /api/v1/humanloop/continue", s.humanloopHandler.HandleContinue)
	callerMux.HandleFunc("GET /api/v1/humanloop/dashboard", s.humanloopHandler.HandleDashboard)
	mux.Handle("/api/v1/humanloop/", APIKeyAuth(s.validator, nil, s.logger)(callerMux))

	// ========================================
	// 管理端 API（Bearer JWT + 超级管理员）
	// ========================================
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("GET /api/v1/admin/humanloop/requests", s.adminHandler.HandleListRequests)
	adminMux.HandleFunc("GET /api/v1/admin/humanloop/requests/{id}", s.adminHandler.HandleGetRequest)
	adminMux.HandleFunc("POST /api/v1/admin/humanloop/requests/{id}/status", s.adminHandler.HandleUpdateStatus)
	adminMux.HandleFunc("POST /api/v1/admin/humanloop/approval", s.adminHandler.HandleApproval)
	adminMux.HandleFunc("POST /api/v1/admin/humanloop/information", s.adminHandler.HandleInformation)
	adminMux.HandleFunc("POST /api/v1/admin/humanloop/conversation", s.adminHandler.HandleConversation)
	adminMux.HandleFunc("POST /api/v1/admin/humanloop/batch", s.adminHandler.HandleBatch)
	adminMux.HandleFunc("GET /api/v1/admin/humanloop/stats", s.adminHandler.HandleStats)
	mux.Handle("/api/v1/admin/", AdminAuth(s.validator, s.logger)(adminMux))

	// ========================================
	// 构建中间件链
	// ========================================
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
	}
	if s.metricsCollector != nil {
		middlewares = append(middlewares, MetricsMiddleware(s.metricsCollector))
	}
	middlewares = append(middlewares,
		CORS(s.cfg.Server.CORSAllowedOrigins),
		OwnerRateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)
	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞），配置了证书时启用 HTTPS
	if s.cfg.Server.TLSCertFile != "" && s.cfg.Server.TLSKeyFile != "" {
		if err := s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile); err != nil {
			return err
		}
	} else if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭缓存连接
	if s.cacheManager != nil {
		if err := s.cacheManager.Close(); err != nil {
			s.logger.Error("Cache shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭数据库连接池
	if s.poolManager != nil {
		if err := s.poolManager.Close(); err != nil {
			s.logger.Error("Database pool shutdown error", zap.Error(err))
		}
	}

	// 5. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
