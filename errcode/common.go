package errcode

import "net/http"

// 通用错误码 (module 1)
var (
	ErrInternal = Register(New(1, 1, "common", "common.internal", "internal error",
		http.StatusInternalServerError).WithCN("服务内部错误"))
	ErrInvalidParams = Register(New(1, 10, "common", "common.invalid_params", "invalid parameters",
		http.StatusBadRequest).WithCN("参数错误"))
	ErrUnauthorized = Register(New(1, 11, "common", "common.unauthorized", "unauthorized",
		http.StatusUnauthorized).WithCN("未授权"))
)
