package health

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Aggregator checks every registered dependency in parallel, bounded by one deadline
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker
	metadata map[string]interface{}
	timeout  time.Duration
}

// NewAggregator timeout <= 0 falls back to the default
func NewAggregator(timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Aggregator{timeout: timeout, metadata: map[string]interface{}{}}
}

// Register 注册检查项, 同名检查项后注册的覆盖结果
func (a *Aggregator) Register(checker Checker) {
	a.mu.Lock()
	a.checkers = append(a.checkers, checker)
	a.mu.Unlock()
}

// SetMetadata static fields echoed in every response (service, version)
func (a *Aggregator) SetMetadata(key string, value interface{}) {
	a.mu.Lock()
	a.metadata[key] = value
	a.mu.Unlock()
}

func (a *Aggregator) snapshot() ([]Checker, map[string]interface{}) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	checkers := append([]Checker(nil), a.checkers...)
	meta := make(map[string]interface{}, len(a.metadata))
	for k, v := range a.metadata {
		meta[k] = v
	}
	return checkers, meta
}

// Check runs all checkers; the overall status is the worst individual one
func (a *Aggregator) Check(ctx context.Context) *Response {
	start := time.Now()
	checkers, meta := a.snapshot()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = runChecker(ctx, c)
		}(i, c)
	}
	wg.Wait()

	overall := StatusHealthy
	checks := make(map[string]CheckResult, len(results))
	for _, r := range results {
		checks[r.Name] = r
		if severity(r.Status) > severity(overall) {
			overall = r.Status
		}
	}

	return &Response{
		Status:    overall,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Checks:    checks,
		Metadata:  meta,
	}
}

func runChecker(ctx context.Context, c Checker) CheckResult {
	start := time.Now()
	err := c.Check(ctx)
	r := CheckResult{
		Name:      c.Name(),
		Status:    StatusHealthy,
		Message:   "OK",
		Timestamp: start,
		Duration:  time.Since(start),
	}
	if err == nil {
		return r
	}

	r.Status = StatusUnhealthy
	if opt, ok := c.(optional); ok && opt.Optional() {
		r.Status = StatusDegraded
	}
	r.Message = "check failed"
	r.Error = err.Error()
	return r
}

func severity(s Status) int {
	switch s {
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	default:
		return 0
	}
}

// HTTPStatus 503 only when a required dependency is down
func (r *Response) HTTPStatus() int {
	if r.Status == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
