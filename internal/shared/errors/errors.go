package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode 业务错误码
type ErrorCode string

const (
	ErrorCodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrorCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrorCodeAlreadyRunning      ErrorCode = "ALREADY_RUNNING"
	ErrorCodeNotRunning          ErrorCode = "NOT_RUNNING"
	ErrorCodeStorageNotConnected ErrorCode = "STORAGE_NOT_CONNECTED"
	ErrorCodeInternalError       ErrorCode = "INTERNAL_ERROR"
	ErrorCodeServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
)

// ServiceError 业务错误
type ServiceError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError 创建业务错误
func NewServiceError(code ErrorCode, message string) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
	}
}

// NewServiceErrorf 创建带格式化消息的业务错误
func NewServiceErrorf(code ErrorCode, format string, args ...any) *ServiceError {
	return NewServiceError(code, fmt.Sprintf(format, args...))
}

// NewServiceErrorWithCause 创建带原因的业务错误
func NewServiceErrorWithCause(code ErrorCode, message string, cause error) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf 取出错误链中的业务错误码，非业务错误返回空
func CodeOf(err error) ErrorCode {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCode 判断错误链中是否包含指定业务错误码
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
