// Package validator 提供统一的参数校验和错误转换
package validator

import (
	"errors"

	"github.com/KOMKZ/go-yogan-ratelimiter/errcode"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validatable 可校验接口
type Validatable interface {
	Validate() error
}

// ValidateRequest runs req.Validate and maps ozzo errors to errcode.ErrInvalidParams
// with per-field messages under data["fields"]
func ValidateRequest(req Validatable) error {
	err := req.Validate()
	if err == nil {
		return nil
	}

	var internal validation.InternalError
	if errors.As(err, &internal) {
		return errcode.ErrInternal.Wrap(internal.InternalError())
	}

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		return ConvertValidationError(fieldErrs)
	}

	// 已经是业务错误直接透传
	var layered *errcode.LayeredError
	if errors.As(err, &layered) {
		return err
	}
	return errcode.ErrInvalidParams.WithMsg(err.Error())
}

// ConvertValidationError flattens nested validation.Errors into "parent.child" keys
func ConvertValidationError(validationErrs validation.Errors) error {
	fields := make(map[string]string)
	flatten("", validationErrs, fields)
	return errcode.ErrInvalidParams.WithData("fields", fields)
}

func flatten(prefix string, errs validation.Errors, out map[string]string) {
	for field, fieldErr := range errs {
		if fieldErr == nil {
			continue
		}
		name := field
		if prefix != "" {
			name = prefix + "." + field
		}
		if nested, ok := fieldErr.(validation.Errors); ok {
			flatten(name, nested, out)
			continue
		}
		out[name] = fieldErr.Error()
	}
}
