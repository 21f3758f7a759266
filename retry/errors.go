package retry

import (
	"fmt"
	"strings"
)

// MultiError 多次重试失败的错误聚合
type MultiError struct {
	Errors   []error
	Attempts int
}

// Error 返回最后一次的错误
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "retry failed: no errors"
	}
	return e.Errors[len(e.Errors)-1].Error()
}

// Unwrap exposes the last error to errors.Is / errors.As
func (e *MultiError) Unwrap() error {
	return e.LastError()
}

// LastError 返回最后一次的错误
func (e *MultiError) LastError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// AllErrors 所有尝试的错误描述
func (e *MultiError) AllErrors() string {
	var b strings.Builder
	fmt.Fprintf(&b, "retry failed after %d attempts:", e.Attempts)
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "\n  attempt %d: %v", i+1, err)
	}
	return b.String()
}
