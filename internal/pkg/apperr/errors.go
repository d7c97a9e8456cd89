package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError 业务错误
// Code 为下发给客户端的错误码，Status 为 REST 接口使用的 HTTP 状态码
type AppError struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code string, status int, message string) *AppError {
	return &AppError{
		Code:    code,
		Status:  status,
		Message: message,
	}
}

// Wrap 包装原始错误，保留错误码
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Status:  e.Status,
		Message: e.Message,
		Err:     err,
	}
}

// WithMessage 替换用户可见的错误消息
func (e *AppError) WithMessage(format string, args ...any) *AppError {
	return &AppError{
		Code:    e.Code,
		Status:  e.Status,
		Message: fmt.Sprintf(format, args...),
		Err:     e.Err,
	}
}

// Is 判断 err 是否与 target 属于同一类错误。
// ErrAuth 与 ErrForbidden 对客户端共用 FORBIDDEN 错误码，靠 HTTP 状态码区分
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code && appErr.Status == target.Status
	}
	return false
}

// GetCode 获取错误码，非 AppError 一律视为服务端错误
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage 获取用户可见消息，非 AppError 不暴露内部细节
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrServer.Message
}

// GetStatus 获取 HTTP 状态码
func GetStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// IsKnown 是否为已定义的业务错误
func IsKnown(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

const (
	CodeForbidden      = "FORBIDDEN"
	CodeValidation     = "VALIDATION_ERROR"
	CodeContentInvalid = "CONTENT_INVALID"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeServerError    = "SERVER_ERROR"
)

var (
	// ErrAuth 凭据缺失、无效或已过期；在 socket 上以 FORBIDDEN 下发
	ErrAuth           = NewError(CodeForbidden, http.StatusUnauthorized, "authentication required")
	ErrValidation     = NewError(CodeValidation, http.StatusBadRequest, "invalid payload")
	ErrContentInvalid = NewError(CodeContentInvalid, http.StatusBadRequest, "invalid message content")
	ErrNotFound       = NewError(CodeNotFound, http.StatusNotFound, "resource not found")
	ErrForbidden      = NewError(CodeForbidden, http.StatusForbidden, "operation not permitted")
	ErrConflict       = NewError(CodeConflict, http.StatusConflict, "resource already exists")
	ErrServer         = NewError(CodeServerError, http.StatusInternalServerError, "internal server error")
)

// ContentMissing 构造指明缺失字段的内容校验错误
func ContentMissing(field string) *AppError {
	return ErrContentInvalid.WithMessage("content.%s is required", field)
}
