package di

import (
	"context"
	"fmt"

	"github.com/KOMKZ/go-yogan-ratelimiter/application"
	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/KOMKZ/go-yogan-ratelimiter/storage"
	"github.com/samber/do/v2"
	"go.uber.org/zap"
)

// StartBackground eagerly builds components nothing else depends on (the sweeper)
// and the HTTP server graph, so configuration errors surface before listening
func StartBackground(ctx context.Context, injector do.Injector) error {
	log, err := do.Invoke[*logger.CtxZapLogger](injector)
	if err != nil {
		return err
	}

	cfg, err := mustConfig(injector)
	if err != nil {
		return err
	}
	if cfg.Storage.SweepInterval > 0 {
		if _, err := do.Invoke[*storage.Sweeper](injector); err != nil {
			return fmt.Errorf("start sweeper failed: %w", err)
		}
		log.DebugCtx(ctx, "expiry sweeper started", zap.Duration("interval", cfg.Storage.SweepInterval))
	}

	if _, err := do.Invoke[*application.HTTPServer](injector); err != nil {
		return err
	}

	if reg, err := do.Invoke[*storage.Registry](injector); err == nil {
		var types []string
		for _, t := range reg.Types() {
			types = append(types, string(t))
		}
		log.InfoCtx(ctx, "storage ready", zap.Strings("types", types))
	}
	return nil
}
