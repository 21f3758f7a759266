package limiter

import "math"

// tokenBucket 令牌桶
//
// 以 rate/秒 补充令牌, 上限 capacity; 新 key 满桶开始。
type tokenBucket struct{}

func (tokenBucket) Name() AlgorithmType { return AlgorithmTokenBucket }

func (tokenBucket) refill(state *State, cfg AlgorithmConfig, now float64) (tokens, last float64) {
	capacity := float64(cfg.Capacity)
	if state == nil {
		return capacity, now
	}
	tokens = clamp(state.Tokens, 0, capacity)
	tokens = math.Min(capacity, tokens+elapsedSince(state.LastRefill, now)*cfg.Rate)
	return tokens, math.Max(state.LastRefill, now)
}

func (b tokenBucket) Evaluate(state *State, cfg AlgorithmConfig, now float64) Result {
	tokens, last := b.refill(state, cfg, now)

	allowed := tokens >= 1
	if allowed {
		tokens--
	}

	return Result{
		Allowed:      allowed,
		State:        &State{Algorithm: AlgorithmTokenBucket, Tokens: tokens, LastRefill: last, UpdatedAt: now},
		Remaining:    floorInt(tokens),
		ResetSeconds: tokenResetSeconds(tokens, cfg),
		Reason:       pick(allowed, ReasonRateExceeded),
	}
}

func (b tokenBucket) Project(state *State, cfg AlgorithmConfig, now float64) Result {
	tokens, _ := b.refill(state, cfg, now)
	allowed := tokens >= 1
	return Result{
		Allowed:      allowed,
		Remaining:    floorInt(tokens),
		ResetSeconds: tokenResetSeconds(tokens, cfg),
		Reason:       pick(allowed, ReasonRateExceeded),
	}
}

// tokenResetSeconds time until the next whole token, 0 when full
func tokenResetSeconds(tokens float64, cfg AlgorithmConfig) int64 {
	if tokens >= float64(cfg.Capacity) {
		return 0
	}
	frac := tokens - math.Floor(tokens)
	return ceilSeconds((1 - frac) / cfg.Rate)
}

func pick(allowed bool, rejected Reason) Reason {
	if allowed {
		return ReasonAllowed
	}
	return rejected
}
