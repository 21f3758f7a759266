package storage

import (
	"errors"
	"net/http"

	"github.com/KOMKZ/go-yogan-ratelimiter/errcode"
)

const moduleCode = 20

var (
	// ErrStorageUnavailable backend unreachable or failing
	ErrStorageUnavailable = errcode.Register(errcode.New(moduleCode, 1, "storage", "STORAGE_UNAVAILABLE",
		"storage backend unavailable", http.StatusServiceUnavailable).WithCN("存储后端不可用"))

	// ErrStoreNotConfigured the requested storage type has no backend
	ErrStoreNotConfigured = errcode.Register(errcode.New(moduleCode, 3, "storage", "STORAGE_NOT_CONFIGURED",
		"storage type not configured", http.StatusServiceUnavailable).WithCN("未配置该存储类型"))

	// ErrNotFound key absent or expired
	ErrNotFound = errors.New("storage: key not found")

	// ErrStoreClosed operation on a closed store
	ErrStoreClosed = errors.New("storage: store is closed")
)

func unavailable(op, key string, err error) error {
	return ErrStorageUnavailable.Wrap(err).WithFields(map[string]interface{}{"op": op, "key": key})
}
