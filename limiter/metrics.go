package limiter

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsSnapshot 指标快照 (按算法 + 动作类型聚合)
type MetricsSnapshot struct {
	Algorithm     AlgorithmType `json:"algorithm_type"`
	ActionType    string        `json:"action_type"`
	TotalRequests int64         `json:"total_requests"`
	Allowed       int64         `json:"allowed"`
	Rejected      int64         `json:"rejected"`
	RejectRate    float64       `json:"reject_rate"` // 拒绝率
	LastResetAt   time.Time     `json:"last_reset_at"`
}

// MetricsCollector in-process decision counters
type MetricsCollector interface {
	RecordDecision(algo AlgorithmType, action string, allowed bool)

	// RecordCorrupt counts KeyStateCorrupt occurrences
	RecordCorrupt()

	Snapshots() []*MetricsSnapshot

	Corrupt() int64

	Reset()
}

type counters struct {
	total    atomic.Int64
	allowed  atomic.Int64
	rejected atomic.Int64
}

type seriesKey struct {
	algo   AlgorithmType
	action string
}

// metricsCollector 指标采集器实现
type metricsCollector struct {
	series      sync.Map // seriesKey -> *counters
	corrupt     atomic.Int64
	lastResetAt time.Time
	mu          sync.RWMutex
}

// NewMetricsCollector 创建指标采集器
func NewMetricsCollector() MetricsCollector {
	return &metricsCollector{lastResetAt: time.Now()}
}

func (m *metricsCollector) RecordDecision(algo AlgorithmType, action string, allowed bool) {
	v, _ := m.series.LoadOrStore(seriesKey{algo, action}, &counters{})
	c := v.(*counters)
	c.total.Add(1)
	if allowed {
		c.allowed.Add(1)
	} else {
		c.rejected.Add(1)
	}
}

func (m *metricsCollector) RecordCorrupt() {
	m.corrupt.Add(1)
}

func (m *metricsCollector) Corrupt() int64 {
	return m.corrupt.Load()
}

// Snapshots sorted by algorithm then action
func (m *metricsCollector) Snapshots() []*MetricsSnapshot {
	m.mu.RLock()
	lastResetAt := m.lastResetAt
	m.mu.RUnlock()

	var out []*MetricsSnapshot
	m.series.Range(func(k, v any) bool {
		key, c := k.(seriesKey), v.(*counters)
		total := c.total.Load()
		rejected := c.rejected.Load()

		var rejectRate float64
		if total > 0 {
			rejectRate = float64(rejected) / float64(total)
		}
		out = append(out, &MetricsSnapshot{
			Algorithm:     key.algo,
			ActionType:    key.action,
			TotalRequests: total,
			Allowed:       c.allowed.Load(),
			Rejected:      rejected,
			RejectRate:    rejectRate,
			LastResetAt:   lastResetAt,
		})
		return true
	})

	sort.Slice(out, func(i, j int) bool {
		if out[i].Algorithm != out[j].Algorithm {
			return out[i].Algorithm < out[j].Algorithm
		}
		return out[i].ActionType < out[j].ActionType
	})
	return out
}

// Reset 重置指标
func (m *metricsCollector) Reset() {
	m.series.Range(func(k, _ any) bool {
		m.series.Delete(k)
		return true
	})
	m.corrupt.Store(0)

	m.mu.Lock()
	m.lastResetAt = time.Now()
	m.mu.Unlock()
}
