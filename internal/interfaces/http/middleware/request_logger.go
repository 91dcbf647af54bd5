package middleware

import (
	"time"

	"github.com/easayliu/alist-photo-relay/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RequestLogger 记录请求耗时，SSE等长连接在断开时记录
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP())
	}
}
