package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestManager_GetLogger_Cached(t *testing.T) {
	m := NewManager(ManagerConfig{EnableConsole: false})
	defer m.CloseAll()

	a := m.GetLogger("limiter")
	b := m.GetLogger("limiter")
	assert.Same(t, a, b)
	assert.Equal(t, "limiter", a.Module())
	assert.NotSame(t, a, m.GetLogger("storage"))
}

func TestManager_FileOutput(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(ManagerConfig{BaseLogDir: dir, EnableFile: true, EnableStacktrace: true})

	log := m.GetLogger("storage")
	log.InfoCtx(context.Background(), "store opened", zap.String("type", "redis"))
	log.ErrorCtx(context.Background(), "store failed")
	m.CloseAll()

	info, err := os.ReadFile(filepath.Join(dir, "storage", "storage-info.log"))
	require.NoError(t, err)
	assert.Contains(t, string(info), "store opened")
	assert.NotContains(t, string(info), "store failed")

	errLog, err := os.ReadFile(filepath.Join(dir, "storage", "storage-error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errLog), "store failed")
	assert.Contains(t, string(errLog), "stack")
}

func TestCtxZapLogger_TraceID(t *testing.T) {
	log, logs := NewTestCtxLogger("limiter")
	log.config.EnableTraceID = true

	ctx := context.WithValue(context.Background(), "trace_id", "abc-123")
	log.InfoCtx(ctx, "checked")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "abc-123", entry.ContextMap()["trace_id"])
	assert.Equal(t, "limiter", entry.ContextMap()["module"])
}

func TestTraceIDFromContext_PrefersSpan(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	ctx := context.WithValue(context.Background(), "trace_id", "from-key")
	ctx = trace.ContextWithSpanContext(ctx, sc)

	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", TraceIDFromContext(ctx, ""))
	assert.Equal(t, "", TraceIDFromContext(context.Background(), ""))
}

func TestCtxZapLogger_With(t *testing.T) {
	log, logs := NewTestCtxLogger("limiter")
	log.With(zap.String("algorithm", "token_bucket")).WarnCtx(context.Background(), "corrupt state")

	require.Equal(t, 1, logs.FilterMessage("corrupt state").Len())
	assert.Equal(t, "token_bucket", logs.All()[0].ContextMap()["algorithm"])
}

func TestCaptureStacktrace_Depth(t *testing.T) {
	stack := CaptureStacktrace(1, 2)
	assert.NotEmpty(t, stack)
	assert.Contains(t, stack, "TestCaptureStacktrace_Depth")
}

func TestGinWriter_Levels(t *testing.T) {
	log, logs := NewTestCtxLogger("gin")
	w := NewGinWriter(log)

	n, err := w.Write([]byte("[GIN-debug] GET /v1/ratelimit/status --> handler (5 handlers)\n"))
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	_, _ = w.Write([]byte("[GIN-debug] [WARNING] Running in \"debug\" mode\n"))
	_, _ = w.Write([]byte("   \n"))

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zap.DebugLevel, logs.All()[0].Level)
	assert.Equal(t, zap.WarnLevel, logs.All()[1].Level)
}
