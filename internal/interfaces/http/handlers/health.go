package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunningCounter 提供当前运行中的任务数
type RunningCounter interface {
	RunningCount() int
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	counter RunningCounter
	version string
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(counter RunningCounter, version string) *HealthHandler {
	return &HealthHandler{counter: counter, version: version}
}

// HealthCheck 健康检查
// @Summary 健康检查
// @Description 检查服务健康状态
// @Tags 健康检查
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"message": "Alist photo relay service is running",
		"version": h.version,
	}
	if h.counter != nil {
		body["running_tasks"] = h.counter.RunningCount()
	}
	c.JSON(http.StatusOK, body)
}
