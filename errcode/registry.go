package errcode

import (
	"fmt"
	"sync"
)

// Registry 错误码注册表（防止错误码冲突）
type Registry struct {
	mu    sync.RWMutex
	codes map[int]string // code -> module:msgKey
}

var globalRegistry = &Registry{codes: make(map[int]string)}

// Register registers into the global registry, panics on conflicting codes
func Register(err *LayeredError) *LayeredError {
	return globalRegistry.Register(err)
}

// Register 相同错误码和键允许重复注册（幂等）
func (r *Registry) Register(err *LayeredError) *LayeredError {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s:%s", err.Module(), err.MsgKey())
	if existing, ok := r.codes[err.Code()]; ok && existing != key {
		panic(fmt.Sprintf("error code conflict: code %d is already registered as %s, cannot register as %s",
			err.Code(), existing, key))
	}
	r.codes[err.Code()] = key
	return err
}

// GetAll returns a copy of all registered codes
func (r *Registry) GetAll() map[int]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make(map[int]string, len(r.codes))
	for k, v := range r.codes {
		codes[k] = v
	}
	return codes
}

// GetAllRegisteredCodes 获取所有已注册的错误码
func GetAllRegisteredCodes() map[int]string {
	return globalRegistry.GetAll()
}
