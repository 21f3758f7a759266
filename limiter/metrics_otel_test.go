package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestOTelMetrics_RecordsDecisions(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	metrics := NewOTelMetrics()
	require.NoError(t, metrics.RegisterMetrics(provider.Meter("test")))
	require.NoError(t, metrics.RegisterMetrics(provider.Meter("test")), "second registration is a no-op")

	reg := storage.NewRegistry(storage.TypeMemory)
	reg.Register(storage.TypeMemory, storage.NewMemoryStore())
	m, err := NewManager(DefaultConfig(), reg, nil, WithOTelMetrics(metrics))
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 3; i++ {
		_, err := m.CheckAndConsume(context.Background(), CheckRequest{Key: chatKey})
		require.NoError(t, err)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "ratelimiter_decisions_total" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			assert.Equal(t, int64(3), total)
			found = true
		}
	}
	assert.True(t, found)
}

func TestOTelMetrics_NilSafe(t *testing.T) {
	var m *OTelMetrics
	m.RecordDecision(context.Background(), &Decision{}, time.Millisecond)
	m.RecordCorrupt(context.Background(), "state")
	m.RecordRetry(context.Background(), AlgorithmTokenBucket)

	unregistered := NewOTelMetrics()
	unregistered.RecordCorrupt(context.Background(), "state")
	assert.Equal(t, "limiter", unregistered.MetricsName())
}
