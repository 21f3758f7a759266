package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Purger stores whose TTL is emulated by an expire_at column / field
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically deletes expired entries
// Expired entries are already invisible to reads; this only reclaims space.
type Sweeper struct {
	scheduler gocron.Scheduler
	purgers   map[string]Purger
	logger    *logger.CtxZapLogger
}

// NewSweeper schedules one singleton job per purger
func NewSweeper(interval time.Duration, purgers map[string]Purger, log *logger.CtxZapLogger) (*Sweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Sweeper{scheduler: scheduler, purgers: purgers, logger: log}
	for name, p := range purgers {
		name, p := name, p
		_, err := scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() { s.sweep(name, p, interval) }),
			gocron.WithName("sweep:"+name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = scheduler.Shutdown()
			return nil, fmt.Errorf("failed to schedule sweep for %s: %w", name, err)
		}
	}
	return s, nil
}

func (s *Sweeper) sweep(name string, p Purger, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := p.PurgeExpired(ctx)
	if err != nil {
		s.logger.WarnCtx(ctx, "expired entry sweep failed", zap.String("store", name), zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.DebugCtx(ctx, "expired entries swept", zap.String("store", name), zap.Int64("count", n))
	}
}

// Start starts the scheduler (non-blocking)
func (s *Sweeper) Start() {
	s.scheduler.Start()
}

// Shutdown implements do.ShutdownerWithError
func (s *Sweeper) Shutdown() error {
	return s.scheduler.Shutdown()
}
