// Package errcode 提供分层错误码
// 错误码格式: MMBBBB (MM = 模块码, BBBB = 业务码)
package errcode

import (
	"fmt"
	"net/http"
)

// LayeredError hierarchical error code with bilingual messages
type LayeredError struct {
	module     string
	code       int
	msgKey     string // stable machine key, e.g. "storage.unavailable"
	msg        string // English message
	msgCN      string // 中文消息
	httpStatus int
	data       map[string]interface{}
	cause      error
}

// New creates a layered error code
// moduleCode: 10-99, businessCode: 0001-9999
// httpStatus is optional and defaults to 200
func New(moduleCode, businessCode int, module, msgKey, msg string, httpStatus ...int) *LayeredError {
	status := http.StatusOK
	if len(httpStatus) > 0 {
		status = httpStatus[0]
	}
	return &LayeredError{
		module:     module,
		code:       moduleCode*10000 + businessCode,
		msgKey:     msgKey,
		msg:        msg,
		msgCN:      msg,
		httpStatus: status,
		data:       make(map[string]interface{}),
	}
}

func (e *LayeredError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Code gets error code
func (e *LayeredError) Code() int { return e.code }

// Module name
func (e *LayeredError) Module() string { return e.module }

// MsgKey stable key used as reason_code in responses
func (e *LayeredError) MsgKey() string { return e.msgKey }

// Message English message
func (e *LayeredError) Message() string { return e.msg }

// MessageCN 中文消息
func (e *LayeredError) MessageCN() string { return e.msgCN }

// HTTPStatus mapped http status
func (e *LayeredError) HTTPStatus() int { return e.httpStatus }

// Data context data
func (e *LayeredError) Data() map[string]interface{} { return e.data }

// Unwrap supports errors.Is / errors.As chains
func (e *LayeredError) Unwrap() error { return e.cause }

// WithCN sets the Chinese message (returns a new instance)
func (e *LayeredError) WithCN(msgCN string) *LayeredError {
	clone := *e
	clone.msgCN = msgCN
	return &clone
}

// WithMsg replaces the English message (returns a new instance)
func (e *LayeredError) WithMsg(msg string) *LayeredError {
	clone := *e
	clone.msg = msg
	return &clone
}

// WithMsgf formats the English message (returns a new instance)
func (e *LayeredError) WithMsgf(format string, args ...interface{}) *LayeredError {
	return e.WithMsg(fmt.Sprintf(format, args...))
}

// WithData adds a single context value (returns a new instance)
func (e *LayeredError) WithData(key string, value interface{}) *LayeredError {
	clone := *e
	clone.data = e.cloneData()
	clone.data[key] = value
	return &clone
}

// WithFields adds context values in batch (returns a new instance)
func (e *LayeredError) WithFields(fields map[string]interface{}) *LayeredError {
	clone := *e
	clone.data = e.cloneData()
	for k, v := range fields {
		clone.data[k] = v
	}
	return &clone
}

// Wrap attaches the original error (returns a new instance)
func (e *LayeredError) Wrap(cause error) *LayeredError {
	if cause == nil {
		return e
	}
	clone := *e
	clone.cause = cause
	return &clone
}

// Wrapf attaches the original error and formats the message
func (e *LayeredError) Wrapf(cause error, format string, args ...interface{}) *LayeredError {
	return e.Wrap(cause).WithMsgf(format, args...)
}

// Is compares by code so wrapped clones still match their sentinel
func (e *LayeredError) Is(target error) bool {
	t, ok := target.(*LayeredError)
	if !ok {
		return false
	}
	return e.code == t.code
}

func (e *LayeredError) cloneData() map[string]interface{} {
	data := make(map[string]interface{}, len(e.data))
	for k, v := range e.data {
		data[k] = v
	}
	return data
}

func (e *LayeredError) String() string {
	if e.cause != nil {
		return fmt.Sprintf("LayeredError{code:%d, module:%s, msg:%s, cause:%v}",
			e.code, e.module, e.msg, e.cause)
	}
	return fmt.Sprintf("LayeredError{code:%d, module:%s, msg:%s}", e.code, e.module, e.msg)
}
