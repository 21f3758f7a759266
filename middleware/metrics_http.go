package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics HTTP 层指标
type HTTPMetrics struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	requestsInFlight metric.Int64UpDownCounter
	responseSize     metric.Int64Histogram // 可选
}

// NewHTTPMetrics registers the instruments on meter
func NewHTTPMetrics(meter metric.Meter, recordResponseSize bool) (*HTTPMetrics, error) {
	requestsTotal, err := meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("HTTP 请求总数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP 请求耗时分布"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	)
	if err != nil {
		return nil, err
	}

	requestsInFlight, err := meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("当前正在处理的 HTTP 请求数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m := &HTTPMetrics{
		requestsTotal:    requestsTotal,
		requestDuration:  requestDuration,
		requestsInFlight: requestsInFlight,
	}
	if recordResponseSize {
		m.responseSize, err = meter.Int64Histogram(
			"http_response_size_bytes",
			metric.WithDescription("HTTP 响应体大小分布"),
			metric.WithUnit("By"),
		)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler gin middleware
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()
		path := c.FullPath() // 路由模式, 避免高基数
		if path == "" {
			path = "unknown"
		}

		m.requestsInFlight.Add(ctx, 1)
		defer m.requestsInFlight.Add(ctx, -1)

		c.Next()

		status := c.Writer.Status()
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("path", path),
			attribute.Int("status_code", status),
			attribute.String("status_class", statusClass(status)),
		)
		m.requestsTotal.Add(ctx, 1, attrs)
		m.requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)

		if m.responseSize != nil && c.Writer.Size() > 0 {
			m.responseSize.Record(ctx, int64(c.Writer.Size()), metric.WithAttributes(
				attribute.String("method", c.Request.Method),
				attribute.String("path", path),
			))
		}
	}
}

func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
