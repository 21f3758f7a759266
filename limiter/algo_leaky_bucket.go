package limiter

import "math"

// leakyBucket 漏桶, 队列以 rate/秒 匀速流出
type leakyBucket struct{}

func (leakyBucket) Name() AlgorithmType { return AlgorithmLeakyBucket }

func (leakyBucket) drain(state *State, cfg AlgorithmConfig, now float64) (level, last float64) {
	if state == nil {
		return 0, now
	}
	level = clamp(state.QueueLevel, 0, float64(cfg.Capacity))
	level = math.Max(0, level-elapsedSince(state.LastLeak, now)*cfg.Rate)
	return level, math.Max(state.LastLeak, now)
}

func (b leakyBucket) Evaluate(state *State, cfg AlgorithmConfig, now float64) Result {
	level, last := b.drain(state, cfg, now)

	allowed := level+1 <= float64(cfg.Capacity)+1e-9
	if allowed {
		level++
	}

	return Result{
		Allowed:      allowed,
		State:        &State{Algorithm: AlgorithmLeakyBucket, QueueLevel: level, LastLeak: last, UpdatedAt: now},
		Remaining:    leakyRemaining(level, cfg),
		ResetSeconds: leakyResetSeconds(level, cfg),
		Reason:       pick(allowed, ReasonQueueFull),
	}
}

func (b leakyBucket) Project(state *State, cfg AlgorithmConfig, now float64) Result {
	level, _ := b.drain(state, cfg, now)
	allowed := level+1 <= float64(cfg.Capacity)+1e-9
	return Result{
		Allowed:      allowed,
		Remaining:    leakyRemaining(level, cfg),
		ResetSeconds: leakyResetSeconds(level, cfg),
		Reason:       pick(allowed, ReasonQueueFull),
	}
}

func leakyRemaining(level float64, cfg AlgorithmConfig) int64 {
	return max(floorInt(float64(cfg.Capacity)-level), 0)
}

// leakyResetSeconds time until one unit of headroom opens up
func leakyResetSeconds(level float64, cfg AlgorithmConfig) int64 {
	return ceilSeconds((level - float64(cfg.Capacity-1)) / cfg.Rate)
}
