package limiter

import (
	"errors"
	"net/http"

	"github.com/KOMKZ/go-yogan-ratelimiter/errcode"
)

const moduleCode = 30

var (
	// ErrConfigInvalid bad parameters or unknown algorithm, never retried
	ErrConfigInvalid = errcode.Register(errcode.New(moduleCode, 1, "limiter", "CONFIG_INVALID",
		ReasonConfigInvalid.Message(), http.StatusBadRequest).WithCN(ReasonConfigInvalid.MessageCN()))

	// ErrKeyStateCorrupt stored state failed to decode; logged and reported, never returned to callers
	ErrKeyStateCorrupt = errcode.Register(errcode.New(moduleCode, 2, "limiter", "KEY_STATE_CORRUPT",
		"stored rate limit state is corrupt", http.StatusInternalServerError).WithCN("限流状态数据损坏"))

	// ErrCASExhausted optimistic-lock retries used up, surfaced as storage unavailable
	ErrCASExhausted = errcode.Register(errcode.New(20, 2, "storage", "CAS_RETRIES_EXHAUSTED",
		"storage write conflict retries exhausted", http.StatusServiceUnavailable).WithCN("存储写冲突重试次数耗尽"))

	// errConflict CompareAndSet lost the race, internal retry signal
	errConflict = errors.New("limiter: state write conflict")
)
