package retry

import "errors"

// RetryCondition retry condition interface
type RetryCondition interface {
	// ShouldRetry attempt starts from 1
	ShouldRetry(err error, attempt int) bool
}

// RetryConditionFunc adapts a function
type RetryConditionFunc func(err error, attempt int) bool

func (f RetryConditionFunc) ShouldRetry(err error, attempt int) bool { return f(err, attempt) }

// AlwaysRetry retries any non-nil error
func AlwaysRetry() RetryCondition {
	return RetryConditionFunc(func(err error, _ int) bool { return err != nil })
}

// NeverRetry 从不重试
func NeverRetry() RetryCondition {
	return RetryConditionFunc(func(error, int) bool { return false })
}

// RetryOnErrors retries when errors.Is matches any target
func RetryOnErrors(targets ...error) RetryCondition {
	return RetryConditionFunc(func(err error, _ int) bool {
		if err == nil {
			return false
		}
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	})
}

// RetryOnCondition custom predicate
func RetryOnCondition(fn func(error) bool) RetryCondition {
	return RetryConditionFunc(func(err error, _ int) bool {
		return err != nil && fn(err)
	})
}
