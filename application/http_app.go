package application

import (
	"fmt"

	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/samber/do/v2"
	"go.uber.org/zap"
)

// Application the rate limiter HTTP service
type Application struct {
	*BaseApplication

	config     *AppConfig
	httpServer *HTTPServer
}

// New resolves the config and root logger from the injector.
// injector 需要已注册 *AppConfig, *logger.CtxZapLogger 和 *HTTPServer 的 Provider
func New(injector *do.RootScope) (*Application, error) {
	cfg, err := do.Invoke[*AppConfig](injector)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log, err := do.Invoke[*logger.CtxZapLogger](injector)
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}
	base := NewBase(injector, log)
	base.WithVersion(cfg.App.Version)
	return &Application{BaseApplication: base, config: cfg}, nil
}

// Run starts the server and blocks until a shutdown signal
func (a *Application) Run() error {
	if err := a.RunNonBlocking(); err != nil {
		_ = a.Shutdown(a.config.Server.ShutdownTimeout)
		return err
	}
	a.WaitShutdown()
	return a.Shutdown(a.config.Server.ShutdownTimeout)
}

// RunNonBlocking builds the component graph and starts listening
func (a *Application) RunNonBlocking() error {
	server, err := do.Invoke[*HTTPServer](a.injector)
	if err != nil {
		return fmt.Errorf("build http server failed: %w", err)
	}
	if err := server.Start(); err != nil {
		return err
	}
	a.httpServer = server
	a.setState(StateRunning)

	fields := []zap.Field{zap.String("addr", server.Addr())}
	if a.version != "" {
		fields = append(fields, zap.String("version", a.version))
	}
	a.logger.InfoCtx(a.ctx, "ratelimiter started", fields...)
	return nil
}

// Config 已加载的根配置
func (a *Application) Config() *AppConfig {
	return a.config
}

// HTTPServer 运行中的服务, RunNonBlocking 之前为 nil
func (a *Application) HTTPServer() *HTTPServer {
	return a.httpServer
}
