package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsHook implements redis.Hook to record command metrics
type MetricsHook struct {
	instance string
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewMetricsHook creates the instruments on meter
func NewMetricsHook(meter metric.Meter, instance string) (*MetricsHook, error) {
	duration, err := meter.Float64Histogram("redis_command_duration_seconds",
		metric.WithDescription("Redis command latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	errCounter, err := meter.Int64Counter("redis_command_errors_total",
		metric.WithDescription("Redis command errors, redis.Nil excluded"))
	if err != nil {
		return nil, err
	}
	return &MetricsHook{instance: instance, duration: duration, errors: errCounter}, nil
}

// DialHook pass through
func (h *MetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

// ProcessHook records single commands
func (h *MetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.record(ctx, cmd.Name(), time.Since(start), err)
		return err
	}
}

// ProcessPipelineHook records pipelined / MULTI commands
func (h *MetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		if len(cmds) == 0 {
			return err
		}
		per := time.Since(start) / time.Duration(len(cmds))
		for _, cmd := range cmds {
			h.record(ctx, cmd.Name(), per, cmd.Err())
		}
		return err
	}
}

func (h *MetricsHook) record(ctx context.Context, name string, d time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("instance", h.instance),
		attribute.String("command", name),
	)
	h.duration.Record(ctx, d.Seconds(), attrs)
	if err != nil && !errors.Is(err, redis.Nil) {
		h.errors.Add(ctx, 1, attrs)
	}
}
