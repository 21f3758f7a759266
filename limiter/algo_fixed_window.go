package limiter

import "math"

// fixedWindow 固定窗口, 窗口按 window_size 对齐
type fixedWindow struct{}

func (fixedWindow) Name() AlgorithmType { return AlgorithmFixedWindow }

// window returns the active window start and its count
func (fixedWindow) window(state *State, cfg AlgorithmConfig, now float64) (start, count int64) {
	start = int64(math.Floor(now/float64(cfg.WindowSize))) * cfg.WindowSize
	if state == nil {
		return start, 0
	}
	switch {
	case state.WindowStart == start:
		count = state.Count
	case state.WindowStart > start:
		// 时钟回拨, 保留已记录的窗口
		start, count = state.WindowStart, state.Count
	}
	return start, min(max(count, 0), cfg.MaxRequests)
}

func (w fixedWindow) Evaluate(state *State, cfg AlgorithmConfig, now float64) Result {
	start, count := w.window(state, cfg, now)

	allowed := count < cfg.MaxRequests
	if allowed {
		count++
	}

	return Result{
		Allowed:      allowed,
		State:        &State{Algorithm: AlgorithmFixedWindow, WindowStart: start, Count: count, UpdatedAt: now},
		Remaining:    cfg.MaxRequests - count,
		ResetSeconds: ceilSeconds(float64(start+cfg.WindowSize) - now),
		Reason:       pick(allowed, ReasonWindowExceeded),
	}
}

func (w fixedWindow) Project(state *State, cfg AlgorithmConfig, now float64) Result {
	start, count := w.window(state, cfg, now)
	allowed := count < cfg.MaxRequests
	return Result{
		Allowed:      allowed,
		Remaining:    cfg.MaxRequests - count,
		ResetSeconds: ceilSeconds(float64(start+cfg.WindowSize) - now),
		Reason:       pick(allowed, ReasonWindowExceeded),
	}
}
