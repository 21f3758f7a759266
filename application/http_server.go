package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/api"
	"github.com/KOMKZ/go-yogan-ratelimiter/health"
	"github.com/KOMKZ/go-yogan-ratelimiter/httpx"
	"github.com/KOMKZ/go-yogan-ratelimiter/jwt"
	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/KOMKZ/go-yogan-ratelimiter/middleware"
	"github.com/KOMKZ/go-yogan-ratelimiter/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// ServerDeps 组件由 DI 注入, 除 Limiter 外都可以为 nil
type ServerDeps struct {
	Limiter   api.Limiter
	Health    *health.Aggregator
	Telemetry *telemetry.Manager
	Metrics   *middleware.HTTPMetrics
	Tokens    *jwt.TokenManager
	Logger    *logger.CtxZapLogger
}

// HTTPServer gin engine plus the net/http server around it
type HTTPServer struct {
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	cfg        ServerConfig
	logger     *logger.CtxZapLogger
}

// NewHTTPServer builds the engine: middleware chain, rate limit API, /healthz and /metrics
func NewHTTPServer(cfg ServerConfig, deps ServerDeps) *HTTPServer {
	log := deps.Logger
	if log == nil {
		log = logger.GetLogger("http")
	}

	// gin 自身输出 (路由表, debug 警告) 走结构化日志
	gin.DefaultWriter = logger.NewGinWriter(logger.GetLogger("gin"))
	gin.DefaultErrorWriter = logger.NewGinWriter(logger.GetLogger("gin"))
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	// otelgin 必须在 TraceID 之前, TraceID 优先使用 span 的 trace id
	if deps.Telemetry != nil && deps.Telemetry.IsEnabled() {
		engine.Use(otelgin.Middleware(deps.Telemetry.GetConfig().ServiceName))
	}
	if cfg.TraceID.Enable {
		traceCfg := middleware.DefaultTraceConfig()
		traceCfg.TraceIDKey = cfg.TraceID.TraceIDKey
		traceCfg.TraceIDHeader = cfg.TraceID.TraceIDHeader
		traceCfg.EnableResponseHeader = cfg.TraceID.EnableResponseHeader
		engine.Use(middleware.TraceID(traceCfg))
	}
	if deps.Metrics != nil {
		engine.Use(deps.Metrics.Handler())
	}
	if cfg.RequestLog.Enable {
		engine.Use(middleware.RequestLog(middleware.RequestLogConfig{
			SkipPaths: cfg.RequestLog.SkipPaths,
			Logger:    log,
		}))
	}
	engine.Use(middleware.Recovery())
	engine.Use(httpx.ErrorLoggingMiddleware(cfg.ErrorLogging))

	// Throttle 在 RequestLog 之后, 被拒绝的请求也会记录
	if cfg.Throttle.Enable && deps.Limiter != nil {
		engine.Use(middleware.Throttle(middleware.ThrottleConfig{
			Checker:       deps.Limiter,
			UniqueID:      cfg.Throttle.UniqueID,
			AlgorithmType: cfg.Throttle.Algorithm,
			Params:        cfg.Throttle.Params(),
			StorageType:   cfg.Throttle.StorageType,
			SkipPaths:     cfg.Throttle.SkipPaths,
			FailOpen:      cfg.Throttle.FailOpen,
			Logger:        log,
		}))
	}

	engine.NoRoute(httpx.NoRouteHandler())
	engine.NoMethod(httpx.NoMethodHandler())

	engine.GET("/healthz", healthHandler(deps.Health))
	if deps.Telemetry != nil && deps.Telemetry.MetricsEnabled() {
		engine.GET("/metrics", gin.WrapH(deps.Telemetry.MetricsHandler()))
	}

	if deps.Limiter != nil {
		var admin gin.HandlerFunc
		if deps.Tokens != nil {
			admin = middleware.AdminJWT(deps.Tokens)
		}
		api.NewHandler(deps.Limiter).Register(engine, admin)
	}

	return &HTTPServer{
		engine: engine,
		cfg:    cfg,
		logger: log,
	}
}

// healthHandler 200 healthy/degraded, 503 unhealthy
func healthHandler(agg *health.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if agg == nil {
			c.JSON(http.StatusOK, gin.H{"status": health.StatusHealthy})
			return
		}
		resp := agg.Check(c.Request.Context())
		c.JSON(resp.HTTPStatus(), resp)
	}
}

// Engine for tests and extra routes
func (s *HTTPServer) Engine() *gin.Engine {
	return s.engine
}

// Addr 实际监听地址, Start 之前为空
func (s *HTTPServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the port synchronously and serves in the background
func (s *HTTPServer) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("端口 %d 不可用: %w", s.cfg.Port, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// 50ms 足够暴露 Serve 的启动错误
	select {
	case err := <-errChan:
		s.logger.ErrorCtx(context.Background(), "HTTP server start failed", zap.Error(err))
		return fmt.Errorf("HTTP 服务启动失败: %w", err)
	case <-time.After(50 * time.Millisecond):
		s.logger.InfoCtx(context.Background(), "HTTP server started",
			zap.String("addr", ln.Addr().String()),
			zap.String("mode", s.cfg.Mode))
		return nil
	}
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP Server 关闭失败: %w", err)
	}
	s.logger.DebugCtx(ctx, "HTTP server closed")
	return nil
}
