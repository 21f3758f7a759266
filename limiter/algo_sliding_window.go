package limiter

import (
	"math"
)

// slidingWindow 滑动窗口, 记录窗口内每个请求的时间戳
//
// 恰好一个窗口之前的请求已移出窗口。
type slidingWindow struct{}

func (slidingWindow) Name() AlgorithmType { return AlgorithmSlidingWindow }

// retained timestamps strictly inside (now-window, ...], returns a new slice
func (slidingWindow) retained(state *State, cfg AlgorithmConfig, now float64) []float64 {
	if state == nil {
		return nil
	}
	cutoff := now - float64(cfg.WindowSize)
	out := make([]float64, 0, len(state.Timestamps)+1)
	for _, ts := range state.Timestamps {
		if ts > cutoff {
			out = append(out, ts)
		}
	}
	// 容量缩小后只保留最新的 max_requests 个
	if over := int64(len(out)) - cfg.MaxRequests; over > 0 {
		out = out[over:]
	}
	return out
}

func (w slidingWindow) Evaluate(state *State, cfg AlgorithmConfig, now float64) Result {
	ts := w.retained(state, cfg, now)

	allowed := int64(len(ts)) < cfg.MaxRequests
	if allowed {
		at := now
		if n := len(ts); n > 0 {
			at = math.Max(at, ts[n-1])
		}
		ts = append(ts, at)
	}

	return Result{
		Allowed:      allowed,
		State:        &State{Algorithm: AlgorithmSlidingWindow, Timestamps: ts, UpdatedAt: now},
		Remaining:    cfg.MaxRequests - int64(len(ts)),
		ResetSeconds: slidingResetSeconds(ts, cfg, now),
		Reason:       pick(allowed, ReasonWindowExceeded),
	}
}

func (w slidingWindow) Project(state *State, cfg AlgorithmConfig, now float64) Result {
	ts := w.retained(state, cfg, now)
	allowed := int64(len(ts)) < cfg.MaxRequests
	return Result{
		Allowed:      allowed,
		Remaining:    cfg.MaxRequests - int64(len(ts)),
		ResetSeconds: slidingResetSeconds(ts, cfg, now),
		Reason:       pick(allowed, ReasonWindowExceeded),
	}
}

// slidingResetSeconds time until the oldest retained request leaves the window
func slidingResetSeconds(ts []float64, cfg AlgorithmConfig, now float64) int64 {
	if len(ts) == 0 {
		return 0
	}
	return ceilSeconds(ts[0] + float64(cfg.WindowSize) - now)
}

// slidingWindowApprox 近似滑动窗口
//
// 只保存当前与上一个固定窗口的计数, 上一窗口按重叠比例加权。
type slidingWindowApprox struct{}

func (slidingWindowApprox) Name() AlgorithmType { return AlgorithmSlidingWindowApprox }

func (slidingWindowApprox) counts(state *State, cfg AlgorithmConfig, now float64) (start, prev, curr int64) {
	size := cfg.WindowSize
	start = int64(math.Floor(now/float64(size))) * size
	if state == nil {
		return start, 0, 0
	}
	switch {
	case state.WindowStart == start:
		prev, curr = state.PrevCount, state.Count
	case state.WindowStart == start-size:
		prev, curr = state.Count, 0
	case state.WindowStart > start:
		start, prev, curr = state.WindowStart, state.PrevCount, state.Count
	}
	return start, max(prev, 0), max(curr, 0)
}

func (slidingWindowApprox) estimate(start, prev, curr int64, cfg AlgorithmConfig, now float64) float64 {
	size := float64(cfg.WindowSize)
	weight := clamp(1-(now-float64(start))/size, 0, 1)
	return float64(prev)*weight + float64(curr)
}

func (w slidingWindowApprox) Evaluate(state *State, cfg AlgorithmConfig, now float64) Result {
	start, prev, curr := w.counts(state, cfg, now)
	est := w.estimate(start, prev, curr, cfg, now)

	allowed := est+1 <= float64(cfg.MaxRequests)+1e-9
	if allowed {
		curr++
		est++
	}

	return Result{
		Allowed: allowed,
		State: &State{Algorithm: AlgorithmSlidingWindowApprox, WindowStart: start,
			PrevCount: prev, Count: curr, UpdatedAt: now},
		Remaining:    approxRemaining(est, cfg),
		ResetSeconds: w.resetSeconds(start, prev, est, cfg, now),
		Reason:       pick(allowed, ReasonWindowExceeded),
	}
}

func (w slidingWindowApprox) Project(state *State, cfg AlgorithmConfig, now float64) Result {
	start, prev, curr := w.counts(state, cfg, now)
	est := w.estimate(start, prev, curr, cfg, now)
	allowed := est+1 <= float64(cfg.MaxRequests)+1e-9
	return Result{
		Allowed:      allowed,
		Remaining:    approxRemaining(est, cfg),
		ResetSeconds: w.resetSeconds(start, prev, est, cfg, now),
		Reason:       pick(allowed, ReasonWindowExceeded),
	}
}

func approxRemaining(est float64, cfg AlgorithmConfig) int64 {
	return int64(clamp(math.Floor(float64(cfg.MaxRequests)-est+1e-9), 0, float64(cfg.MaxRequests)))
}

// resetSeconds until one unit of headroom, bounded by the window end
func (slidingWindowApprox) resetSeconds(start, prev int64, est float64, cfg AlgorithmConfig, now float64) int64 {
	excess := est - float64(cfg.MaxRequests-1)
	if excess <= 1e-9 {
		return 0
	}
	toWindowEnd := float64(start+cfg.WindowSize) - now
	if prev > 0 {
		decay := float64(prev) / float64(cfg.WindowSize)
		return ceilSeconds(math.Min(excess/decay, toWindowEnd))
	}
	return ceilSeconds(toWindowEnd)
}
