package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	apperrors "github.com/easayliu/alist-photo-relay/internal/shared/errors"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ErrorHandlerMiddleware 统一错误处理中间件
// 捕获handler中设置的错误,自动转换为合适的HTTP响应
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		code := apperrors.CodeOf(err)
		if code == "" {
			code = apperrors.ErrorCodeInternalError
		}
		statusCode := MapErrorCodeToHTTPStatus(code)
		if statusCode >= http.StatusInternalServerError {
			logger.Error("Request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		}

		body := gin.H{
			"code":    code,
			"message": err.Error(),
		}
		var serviceErr *apperrors.ServiceError
		if errors.As(err, &serviceErr) {
			body["message"] = serviceErr.Message
			if len(serviceErr.Details) > 0 {
				body["details"] = serviceErr.Details
			}
		}
		c.JSON(statusCode, body)
	}
}

// MapErrorCodeToHTTPStatus 将业务错误码映射到HTTP状态码
func MapErrorCodeToHTTPStatus(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrorCodeInvalidRequest:
		return http.StatusBadRequest
	case apperrors.ErrorCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorCodeAlreadyRunning, apperrors.ErrorCodeNotRunning:
		return http.StatusConflict
	case apperrors.ErrorCodeStorageNotConnected:
		return http.StatusPreconditionFailed
	case apperrors.ErrorCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RecoverMiddleware 恢复中间件 - 捕获panic并转换为500错误
func RecoverMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Handler panic", "path", c.Request.URL.Path, "panic", r, "stack", string(debug.Stack()))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    apperrors.ErrorCodeInternalError,
					"message": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
