package limiter

import (
	"math"
)

// AlgorithmType 算法类型
type AlgorithmType string

const (
	// AlgorithmTokenBucket 令牌桶
	AlgorithmTokenBucket AlgorithmType = "token_bucket"

	// AlgorithmFixedWindow 固定窗口
	AlgorithmFixedWindow AlgorithmType = "fixed_window"

	// AlgorithmSlidingWindow 滑动窗口（精确时间戳列表）
	AlgorithmSlidingWindow AlgorithmType = "sliding_window"

	// AlgorithmLeakyBucket 漏桶
	AlgorithmLeakyBucket AlgorithmType = "leaky_bucket"

	// AlgorithmMultipleBuckets 令牌桶 + 滑动窗口
	AlgorithmMultipleBuckets AlgorithmType = "multiple_buckets"

	// AlgorithmSlidingWindowApprox 双计数器近似滑动窗口, 可选
	AlgorithmSlidingWindowApprox AlgorithmType = "sliding_window_approx"
)

// Algorithms the five public algorithm identifiers
func Algorithms() []AlgorithmType {
	return []AlgorithmType{
		AlgorithmTokenBucket,
		AlgorithmFixedWindow,
		AlgorithmSlidingWindow,
		AlgorithmLeakyBucket,
		AlgorithmMultipleBuckets,
	}
}

// Valid reports whether t names a known algorithm
func (t AlgorithmType) Valid() bool {
	_, ok := algorithms[t]
	return ok
}

// Result one evaluation
type Result struct {
	Allowed      bool
	State        *State
	Remaining    int64
	ResetSeconds int64
	Reason       Reason
}

// Algorithm pure admission engine; never errors, clamps instead
type Algorithm interface {
	// Evaluate consumes one unit if admitted and returns the state to persist.
	// state == nil means fresh. The input state is not modified.
	Evaluate(state *State, cfg AlgorithmConfig, now float64) Result

	// Project reports what a check issued now would see, without consuming
	Project(state *State, cfg AlgorithmConfig, now float64) Result

	Name() AlgorithmType
}

var algorithms = map[AlgorithmType]Algorithm{
	AlgorithmTokenBucket:         tokenBucket{},
	AlgorithmFixedWindow:         fixedWindow{},
	AlgorithmSlidingWindow:       slidingWindow{},
	AlgorithmLeakyBucket:         leakyBucket{},
	AlgorithmMultipleBuckets:     multipleBuckets{},
	AlgorithmSlidingWindowApprox: slidingWindowApprox{},
}

// GetAlgorithm returns the engine for t
func GetAlgorithm(t AlgorithmType) (Algorithm, error) {
	algo, ok := algorithms[t]
	if !ok {
		return nil, ErrConfigInvalid.WithMsgf("unknown algorithm: %s", t).WithData("algorithm_type", string(t))
	}
	return algo, nil
}

// ceilSeconds rounds a duration in seconds up, tolerating float noise
func ceilSeconds(d float64) int64 {
	if d <= 1e-9 {
		return 0
	}
	return int64(math.Ceil(d - 1e-9))
}

func elapsedSince(last, now float64) float64 {
	return math.Max(0, now-last)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func floorInt(v float64) int64 {
	return int64(math.Floor(v + 1e-9))
}
